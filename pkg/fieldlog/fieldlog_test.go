package fieldlog

import (
	"strings"
	"testing"
	"time"
)

const validLog = `Deployment,StartDate,StartTime,EndDate,EndTime
r0001-siteA,2024:01:01,08:00:00,2024:01:05,18:00:00
r0001-siteB,2024:01:02,09:30:00,2024:01:06,17:00:00
`

func TestParseValidLog(t *testing.T) {
	entries, err := Parse(strings.NewReader(validLog))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	first := entries[0]
	if first.Deployment != "r0001-siteA" {
		t.Errorf("Deployment = %q", first.Deployment)
	}
	wantStart := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	if !first.ExpectedStart.Equal(wantStart) {
		t.Errorf("ExpectedStart = %v, want %v", first.ExpectedStart, wantStart)
	}
	wantEnd := time.Date(2024, 1, 5, 18, 0, 0, 0, time.UTC)
	if !first.ExpectedEnd.Equal(wantEnd) {
		t.Errorf("ExpectedEnd = %v, want %v", first.ExpectedEnd, wantEnd)
	}
}

func TestParseRejectsWholeLog(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errPart string
	}{
		{
			"missing column",
			"Deployment,StartDate,StartTime,EndDate\nr0001-a,2024:01:01,08:00:00,2024:01:02\n",
			"missing required column",
		},
		{
			"duplicate column",
			"Deployment,StartDate,StartDate,StartTime,EndDate,EndTime\nr0001-a,2024:01:01,2024:01:01,08:00:00,2024:01:02,08:00:00\n",
			"duplicate column",
		},
		{
			"duplicate deployment",
			"Deployment,StartDate,StartTime,EndDate,EndTime\nr0001-a,2024:01:01,08:00:00,2024:01:02,08:00:00\nr0001-a,2024:01:03,08:00:00,2024:01:04,08:00:00\n",
			"duplicate deployment name",
		},
		{
			"inverted window",
			"Deployment,StartDate,StartTime,EndDate,EndTime\nr0001-a,2024:01:05,08:00:00,2024:01:01,08:00:00\n",
			"not before expected end",
		},
		{
			"equal start and end",
			"Deployment,StartDate,StartTime,EndDate,EndTime\nr0001-a,2024:01:01,08:00:00,2024:01:01,08:00:00\n",
			"not before expected end",
		},
		{
			"missing time value",
			"Deployment,StartDate,StartTime,EndDate,EndTime\nr0001-a,2024:01:01,,2024:01:02,08:00:00\n",
			"missing date or time",
		},
		{
			"unparseable date",
			"Deployment,StartDate,StartTime,EndDate,EndTime\nr0001-a,01/01/2024,08:00:00,2024:01:02,08:00:00\n",
			"unparseable value",
		},
		{
			"missing deployment name",
			"Deployment,StartDate,StartTime,EndDate,EndTime\n,2024:01:01,08:00:00,2024:01:02,08:00:00\n",
			"missing deployment name",
		},
		{
			"empty file",
			"",
			"empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.content))
			if err == nil {
				t.Fatal("expected parse to reject the log")
			}
			if !strings.Contains(err.Error(), tt.errPart) {
				t.Errorf("error %q does not mention %q", err, tt.errPart)
			}
		})
	}
}

func TestLogName(t *testing.T) {
	if got := LogName("R0001"); got != "R0001_FileTimestampLog.csv" {
		t.Errorf("LogName = %q", got)
	}
}

func TestParseExtraColumnsTolerated(t *testing.T) {
	content := "Notes,Deployment,StartDate,StartTime,EndDate,EndTime\nfoo,r0001-a,2024:01:01,08:00:00,2024:01:02,08:00:00\n"
	entries, err := Parse(strings.NewReader(content))
	if err != nil {
		t.Fatalf("extra columns should be tolerated: %v", err)
	}
	if len(entries) != 1 || entries[0].Deployment != "r0001-a" {
		t.Errorf("unexpected entries %v", entries)
	}
}
