package transfer

import (
	"context"
	"reflect"
	"testing"
)

// fakeRsyncScript prints a canned rsync -i --progress transcript so
// the executor's line classification and progress mapping can be
// tested without a real rsync binary or network peer.
const fakeRsyncScript = `
echo '>f+++++++++ CTD/cast001.raw'
echo '    1,048,576 100%   12.34MB/s    0:00:01 (xfr#1, to-chk=2/3)'
echo '>f.st...... CTD/cast000.raw'
echo '    2,097,152 100%   12.34MB/s    0:00:01 (xfr#2, to-chk=1/3)'
echo '>f+++++++++ CTD/cast002.raw'
echo '    4,194,304 100%   12.34MB/s    0:00:01 (xfr#3, to-chk=0/3)'
`

func TestRunClassifiesAndReportsProgress(t *testing.T) {
	var percents []int
	result, err := Run(context.Background(), nil, 3, "sh", []string{"-c", fakeRsyncScript},
		ProgressRange{Start: 20, End: 70},
		func(p int) { percents = append(percents, p) })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !reflect.DeepEqual(result.New, []string{"CTD/cast001.raw", "CTD/cast002.raw"}) {
		t.Errorf("New = %v", result.New)
	}
	if !reflect.DeepEqual(result.Updated, []string{"CTD/cast000.raw"}) {
		t.Errorf("Updated = %v", result.Updated)
	}

	want := []int{20 + (33*(70-20))/100, 20 + (66*(70-20))/100, 70}
	if !reflect.DeepEqual(percents, want) {
		t.Errorf("percents = %v, want %v", percents, want)
	}
}

func TestRunZeroEstimatedFilesSkipsSpawn(t *testing.T) {
	result, err := Run(context.Background(), nil, 0, "false", nil, ProgressRange{}, nil)
	if err != nil {
		t.Fatalf("Run with zero estimate should not error: %v", err)
	}
	if len(result.New) != 0 || len(result.Updated) != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
}

func TestRunCancelFlagStopsEarly(t *testing.T) {
	cancel := &CancelFlag{}
	cancel.Set()

	result, err := Run(context.Background(), cancel, 3, "sh", []string{"-c", "echo starting; sleep 5"}, ProgressRange{}, nil)
	if err == nil {
		t.Error("expected an error when the cancel flag is already set")
	}
	if len(result.New) != 0 {
		t.Errorf("expected no files recorded, got %+v", result)
	}
}
