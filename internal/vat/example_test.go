package vat_test

import (
	"fmt"
	"time"

	"docvat/internal/vat"
)

func ExampleFormatSwissAmount() {
	fmt.Println(vat.FormatSwissAmount(125000))
	fmt.Println(vat.FormatSwissAmount(4860.5))
	// Output:
	// 125'000.00
	// 4'860.50
}

func ExampleCalculateVAT() {
	fmt.Println(vat.CalculateVAT(1000, vat.RateNormal.Percent))
	fmt.Println(vat.CalculateVAT(333.33, vat.RateReduced.Percent))
	// Output:
	// 81
	// 8.67
}

func ExampleDeclaration_Submit() {
	period, _ := vat.LookupPeriod(2025, "Q1")
	created := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)

	d := vat.NewDeclaration(vat.Params{
		Entity:    "Hypervisual SA",
		VATNumber: "CHE-123.456.789 TVA",
		Period:    period,
		CreatedAt: created,
	})
	_ = d.Update(vat.SectionCollected, vat.CategoryNormalRate, vat.Amounts{NetAmount: 10000}, created)
	_ = d.Update(vat.SectionDeductible, vat.CategoryGoods, vat.Amounts{NetAmount: 2000, VATAmount: 162}, created)

	if _, err := d.Submit("Paul Martin", created.Add(time.Hour)); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(d.Status, vat.FormatAmount(d.Result.VATToPay))
	// Output:
	// submitted 648.00
}
