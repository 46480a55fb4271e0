package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/wuimap/internal/model"
)

func TestFormatBatch(t *testing.T) {
	runs := []*model.Run{
		{
			Scenario: "boulder_2019",
			Year:     2019,
			Status:   model.RunStatusComplete,
			Result:   &model.RunResult{OutputDir: "output/boulder_2019", Radii: make([]model.RadiusResult, 3)},
		},
		{
			Scenario: "broken",
			Status:   model.RunStatusFailed,
			Result:   &model.RunResult{Error: "pipeline: read land cover"},
		},
		{Scenario: "pending", Status: model.RunStatusQueued},
	}

	var buf bytes.Buffer
	formatBatch(&buf, runs)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	assert.Len(t, lines, 4)
	assert.Contains(t, string(lines[1]), "output/boulder_2019")
	assert.Contains(t, string(lines[1]), "3")
	assert.Contains(t, string(lines[2]), "pipeline: read land cover")
	assert.Contains(t, string(lines[3]), "queued")
}
