package scheduler

import (
	"errors"
	"testing"
	"time"
)

func TestValidateCron(t *testing.T) {
	valid := []string{
		"* * * * * ?",
		"*/3 * * * * ?",
		"0 0 0 * * ?",
		"0 15 10 ? * MON-FRI",
		"0 0 12 1/5 * ?",
		"0 0 8 ? * 2,4,6",
		"0 0 0 1 JAN ? 2030",
		"0 0 0 1 1 ? 2030-2040/2",
		"@hourly",
		"@every 90s",
	}
	for _, expr := range valid {
		if err := ValidateCron(expr); err != nil {
			t.Errorf("ValidateCron(%q) = %v", expr, err)
		}
	}

	invalid := []string{
		"",
		"not-a-cron",
		"* * * * *",
		"* * * * * * * *",
		"61 * * * * ?",
		"0 0 25 * * ?",
		"0 0 0 L * ?",
		"0 0 0 15W * ?",
		"0 0 0 ? * 6#3",
		"0 0 0 ? * 8",
		"0 0 0 ? * 0",
		"0 0 0 1 1 ? 1969",
		"0 0 0 1 1 ? abc",
		"@fortnightly",
	}
	for _, expr := range invalid {
		err := ValidateCron(expr)
		var ce *CronValidationError
		if !errors.As(err, &ce) {
			t.Errorf("ValidateCron(%q) = %v, want *CronValidationError", expr, err)
		}
	}
}

func TestQuartzDayOfWeek(t *testing.T) {
	// 2026-10-12 is a Monday; Quartz 2 is MON.
	from := time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC)
	got, err := NextFireTimes("0 0 9 ? * 2", from, 2)
	if err != nil {
		t.Fatal(err)
	}
	want := []time.Time{
		time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("NextFireTimes[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSecondsField(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC)
	got, err := NextFireTimes("*/3 * * * * ?", from, 3)
	if err != nil {
		t.Fatal(err)
	}
	for i, sec := range []int{3, 6, 9} {
		if got[i].Second() != sec {
			t.Fatalf("fire %d at second %d, want %d", i, got[i].Second(), sec)
		}
	}
}

func TestYearField(t *testing.T) {
	from := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	got, err := NextFireTimes("0 0 0 1 1 ? 2028,2030", from, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("NextFireTimes = %v, want two fire times", got)
	}
	if got[0].Year() != 2028 || got[1].Year() != 2030 {
		t.Fatalf("years = %d, %d", got[0].Year(), got[1].Year())
	}
}
