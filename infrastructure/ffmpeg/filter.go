package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"
)

// MixFilterBuilder constructs the filter_complex graph for the export
// command: per-track gain filters producing labeled streams, an amix of
// all labels, then dynamic-range normalization of the mixed result.
type MixFilterBuilder struct {
	gains   []string
	labels  []string
	inputs  int
	normTag string
}

// NewMixFilterBuilder creates an empty mix graph builder.
func NewMixFilterBuilder() *MixFilterBuilder {
	return &MixFilterBuilder{normTag: "a_final"}
}

// AddTrack appends a gain stage for one audio stream ordinal. The label
// order fixes the amix input order, so calls must be deterministic.
func (b *MixFilterBuilder) AddTrack(streamIndex int, gainDB float64) *MixFilterBuilder {
	label := fmt.Sprintf("a%d", b.inputs)
	gain := strconv.FormatFloat(gainDB, 'f', -1, 64)
	b.gains = append(b.gains, fmt.Sprintf("[0:a:%d]volume=%sdB[%s]", streamIndex, gain, label))
	b.labels = append(b.labels, "["+label+"]")
	b.inputs++
	return b
}

// OutputLabel is the label of the final normalized stream, for -map.
func (b *MixFilterBuilder) OutputLabel() string {
	return "[" + b.normTag + "]"
}

// Inputs returns the number of tracks added so far.
func (b *MixFilterBuilder) Inputs() int {
	return b.inputs
}

// Build renders the complete filter_complex expression.
func (b *MixFilterBuilder) Build() string {
	if b.inputs == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(strings.Join(b.gains, ";"))
	sb.WriteString(";")
	sb.WriteString(strings.Join(b.labels, ""))
	sb.WriteString(fmt.Sprintf("amix=inputs=%d[outa];[outa]dynaudnorm[%s]", b.inputs, b.normTag))
	return sb.String()
}
