package bes

import (
	"errors"
	"testing"
	"time"
)

func TestParseBuildDate(t *testing.T) {
	got, err := parseBuildDate("Sep 21 2024 10:30:00")
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2024, time.September, 21, 10, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("build date = %v, want %v", got, want)
	}
}

func TestParseBuildDateRejectsGarbage(t *testing.T) {
	if _, err := parseBuildDate("last tuesday"); !errors.Is(err, ErrUnparseableResponse) {
		t.Fatalf("err = %v, want unparseable response", err)
	}
}

func TestParseTWSBatteryLevelsWithoutCase(t *testing.T) {
	levels, err := parseTWSBatteryLevels("Main ear battery_level: 85\nRemote ear battery_level: 80")
	if err != nil {
		t.Fatal(err)
	}
	if levels.Left != 85 || levels.Right != 80 || levels.Case != nil {
		t.Fatalf("levels = %+v", levels)
	}
}

func TestParseTWSBatteryLevelsRejectsOutOfRange(t *testing.T) {
	_, err := parseTWSBatteryLevels("Main ear battery_level: 185\nRemote ear battery_level: 80")
	if !errors.Is(err, ErrUnparseableResponse) {
		t.Fatalf("err = %v, want unparseable response", err)
	}
}

func TestParseVolumeRejectsGarbage(t *testing.T) {
	if _, err := parseVolume("no volume here"); !errors.Is(err, ErrUnparseableResponse) {
		t.Fatalf("err = %v, want unparseable response", err)
	}
}

func TestParseDeviceInfoPairs(t *testing.T) {
	pairs := parseDeviceInfoPairs("bt_addr: 11:22:23:33:33:51\nbt_name: lab buds\nnot a pair")
	if pairs["bt_addr"] != "11:22:23:33:33:51" {
		t.Fatalf("bt_addr = %q", pairs["bt_addr"])
	}
	if pairs["bt_name"] != "lab buds" {
		t.Fatalf("bt_name = %q", pairs["bt_name"])
	}
}

func TestResponsePatternCapturesTrailingText(t *testing.T) {
	m := responsePattern.FindStringSubmatch("ok (error code 0) all done")
	if m == nil {
		t.Fatal("status line did not match")
	}
	groups := namedGroups(responsePattern, m)
	if groups["status"] != "ok" || groups["code"] != "0" || groups["message"] != "all done" {
		t.Fatalf("groups = %v", groups)
	}
}

func TestAccessModePattern(t *testing.T) {
	re := accessModePattern(AccessEnablePairing)
	if !re.MatchString("[BT] Access mode changed to 3") {
		t.Fatal("access mode marker did not match")
	}
	if re.MatchString("[BT] Access mode changed to 0") {
		t.Fatal("marker for a different mode matched")
	}
}
