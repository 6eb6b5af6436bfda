package model

import (
	"strconv"
	"strings"
)

// OCTLabels is the OCT-2017 class vocabulary the model was fine-tuned on.
var OCTLabels = []string{"CNV", "DME", "DRUSEN", "NORMAL"}

// ResolveLabels turns a config.json id2label mapping into a list indexed by
// class id. numLabels is config.json's num_labels (0 when absent); together
// with the mapping size it bounds the largest usable id. Non-integer keys,
// duplicate ids, ids past that bound, and four generic LABEL_n placeholders
// resolve to OCTLabels. Negative ids never name an output and are ignored.
func ResolveLabels(id2label map[string]string, numLabels int) []string {
	if len(id2label) == 0 {
		return octLabels()
	}

	limit := max(len(id2label), numLabels)
	byID := make(map[int]string, len(id2label))
	generic := true
	for k, v := range id2label {
		id, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || id >= limit {
			return octLabels()
		}
		if _, dup := byID[id]; dup {
			return octLabels()
		}
		byID[id] = v
		if !strings.HasPrefix(strings.ToUpper(v), "LABEL_") {
			generic = false
		}
	}

	if generic && len(byID) == len(OCTLabels) {
		return octLabels()
	}

	size := numLabels
	for id := range byID {
		size = max(size, id+1)
	}
	labels := make([]string, size)
	for i := range labels {
		if v, ok := byID[i]; ok {
			labels[i] = v
		} else {
			labels[i] = strconv.Itoa(i)
		}
	}
	return labels
}

func octLabels() []string {
	out := make([]string, len(OCTLabels))
	copy(out, OCTLabels)
	return out
}
