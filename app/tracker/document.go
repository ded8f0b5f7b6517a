package tracker

import (
	"bytes"
	"encoding/json"
	"fmt"

	log "github.com/go-pkgz/lgr"
)

// untitled is the name given to a stored project without one
const untitled = "Untitled"

// rawDoc keeps fields undecoded, stored documents may be written by other
// clients and any field can be missing or of unexpected type
type rawDoc struct {
	ID        json.RawMessage `json:"id"`
	Name      json.RawMessage `json:"name"`
	Jobs      json.RawMessage `json:"jobs"`
	Qty       json.RawMessage `json:"qty"`
	Processes json.RawMessage `json:"processes"`
}

// encodeProject makes the stored document for a project
func encodeProject(p Project) ([]byte, error) {
	if p.Jobs == nil {
		p.Jobs = []Job{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode project %s: %w", p.ID, err)
	}
	return data, nil
}

// decodeProject maps a stored document to a project. It never fails: a missing
// or malformed id is replaced by a new one, a missing name by "Untitled" and
// anything but an array in jobs by no jobs.
func decodeProject(data []byte) Project {
	var doc rawDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Printf("[WARN] malformed project document, %v", err)
		doc = rawDoc{}
	}

	res := Project{ID: scalar(doc.ID), Name: scalar(doc.Name), Jobs: []Job{}}
	if res.ID == "" {
		res.ID = NewID()
	}
	if res.Name == "" {
		res.Name = untitled
	}

	var jobs []json.RawMessage
	if !isArray(doc.Jobs) || json.Unmarshal(doc.Jobs, &jobs) != nil {
		return res
	}
	for i, raw := range jobs {
		job, ok := decodeJob(raw)
		if !ok {
			log.Printf("[WARN] skip malformed job %d of project %s", i, res.ID)
			continue
		}
		res.Jobs = append(res.Jobs, job)
	}
	return res
}

func decodeJob(data []byte) (Job, bool) {
	var doc rawDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return Job{}, false
	}
	res := Job{ID: scalar(doc.ID), Name: scalar(doc.Name), Qty: scalar(doc.Qty), Processes: []ProcessStep{}}
	if res.ID == "" {
		res.ID = NewID()
	}
	if !isArray(doc.Processes) {
		return res, true
	}

	var steps []json.RawMessage
	if err := json.Unmarshal(doc.Processes, &steps); err != nil {
		return res, true
	}
	for _, raw := range steps {
		var step rawStep
		if err := json.Unmarshal(raw, &step); err != nil {
			continue
		}
		res.Processes = append(res.Processes, ProcessStep{Name: scalar(step.Name), Status: StepStatus(scalar(step.Status))})
	}
	return res, true
}

type rawStep struct {
	Name   json.RawMessage `json:"name"`
	Status json.RawMessage `json:"status"`
}

// scalar returns a string or number value as string, anything else as empty string
func scalar(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err == nil {
		return n.String()
	}
	return ""
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}
