package store

import "time"

// Kind is the capture modality of a recording.
type Kind string

const (
	KindCough       Kind = "cough"
	KindBreath      Kind = "breath"
	KindStethoscope Kind = "stethoscope"
)

func (k Kind) Valid() bool {
	switch k {
	case KindCough, KindBreath, KindStethoscope:
		return true
	}
	return false
}

// AnalysisResult is the outcome of analyzing one recording. It is attached
// to exactly one entry and overwritten, never appended, on re-analysis.
type AnalysisResult struct {
	RespiratoryRate int     `json:"respiratory_rate"`
	Condition       string  `json:"condition"`
	Confidence      float64 `json:"confidence"`
	Irregularities  bool    `json:"irregularities"`
	Interpretation  string  `json:"interpretation"`
	Recommendations string  `json:"recommendations"`
	// SpectrogramData holds normalized [0,1] intensities, one per
	// time-frequency cell in frame order.
	SpectrogramData []float64 `json:"spectrogram_data"`
}

// RecordingEntry is one indexed recording. ID and CreatedAt are immutable
// once assigned; Path points at a file owned by the store.
type RecordingEntry struct {
	ID              string          `json:"id"`
	Path            string          `json:"path"`
	DurationSeconds float64         `json:"duration_seconds"`
	CreatedAt       time.Time       `json:"created_at"`
	FileSizeBytes   int64           `json:"file_size_bytes"`
	Kind            Kind            `json:"kind"`
	Analyzed        bool            `json:"analyzed"`
	AnalysisResult  *AnalysisResult `json:"analysis_result,omitempty"`
}

// Seed is the metadata supplied alongside a new capture file. Kind is
// required; the rest is assigned by the store when absent.
type Seed struct {
	Kind            Kind
	DurationSeconds float64
	ID              string
	CreatedAt       time.Time
}

// Patch is the allow-listed partial update for an entry. Nil fields are
// left untouched; ID, Path and CreatedAt are not patchable.
type Patch struct {
	DurationSeconds *float64
	Analyzed        *bool
	AnalysisResult  *AnalysisResult
}
