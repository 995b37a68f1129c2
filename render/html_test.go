package render

import (
	"os"
	"strings"
	"testing"

	"github.com/utxoracle/utxoracled/oracle"
)

func testResult() *oracle.PriceResult {
	return &oracle.PriceResult{
		Price:       42345,
		Deviation:   0.12,
		Band:        0.05,
		StartHeight: 825000,
		EndHeight:   825143,
		Date:        "2024-01-15",
		Samples:     3,
	}
}

func testPoints() []oracle.PricePoint {
	return []oracle.PricePoint{
		{Price: 42000, Height: 825001, Time: 1705276800},
		{Price: 42345, Height: 825050, Time: 1705300000},
		{Price: 42700, Height: 825120, Time: 1705330000},
	}
}

func TestFileName(t *testing.T) {
	if got := FileName(testResult()); got != "UTXOracle_2024-01-15.html" {
		t.Errorf("date-mode name = %s", got)
	}
	recent := testResult()
	recent.Date = ""
	if got := FileName(recent); got != "UTXOracle_825000-825143.html" {
		t.Errorf("recent-mode name = %s", got)
	}
}

func TestWriteChart(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteChart(testResult(), testPoints(), dir)
	if err != nil {
		t.Fatal(err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	html := string(content)
	for _, want := range []string{
		"<!DOCTYPE html>",
		"UTXOracle Consensus Price $42345",
		"825001",
		"42000",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("chart missing %q", want)
		}
	}
}

// Samples outside the reporting band are dropped from the plot.
func TestWriteChartFiltersBand(t *testing.T) {
	dir := t.TempDir()
	points := append(testPoints(), oracle.PricePoint{Price: 90000, Height: 825060, Time: 1705310000})
	path, err := WriteChart(testResult(), points, dir)
	if err != nil {
		t.Fatal(err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(content), "90000") {
		t.Error("out-of-band sample rendered")
	}
}

func TestWriteChartRecentMode(t *testing.T) {
	dir := t.TempDir()
	recent := testResult()
	recent.Date = ""
	path, err := WriteChart(recent, testPoints(), dir)
	if err != nil {
		t.Fatal(err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "Block Window Price") {
		t.Error("recent-mode title missing")
	}
}
