package domain

import "time"

// JobKind selects which fixed stage pipeline a job runs.
type JobKind string

const (
	JobKindYouTube JobKind = "youtube"
	JobKindPDF     JobKind = "pdf"
)

// Valid reports whether the kind has a registered pipeline shape.
func (k JobKind) Valid() bool {
	return k == JobKindYouTube || k == JobKindPDF
}

// JobStatus tracks the lifecycle of a single job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are possible.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed || s == JobStatusCancelled
}

// Job is one user-requested operation and its current state.
type Job struct {
	ID              string          `json:"id"`
	Kind            JobKind         `json:"kind"`
	Input           string          `json:"input"`
	Status          JobStatus       `json:"status"`
	Stage           string          `json:"stage,omitempty"`
	Progress        float64         `json:"progress"`
	CancelRequested bool            `json:"cancelRequested,omitempty"`
	Title           string          `json:"title,omitempty"`
	Language        string          `json:"language,omitempty"`
	Result          string          `json:"result,omitempty"`
	Analysis        *AnalysisResult `json:"analysis,omitempty"`
	Error           *JobError       `json:"error,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	StartedAt       time.Time       `json:"startedAt,omitempty"`
	FinishedAt      time.Time       `json:"finishedAt,omitempty"`
}

// ProgressEvent is an immutable notification of progress within a job.
type ProgressEvent struct {
	JobID      string  `json:"jobId"`
	Stage      string  `json:"stage"`
	StageIndex int     `json:"stageIndex"`
	Fraction   float64 `json:"fraction"`
	Overall    float64 `json:"overall"`
	Message    string  `json:"message,omitempty"`
}

// AnalysisResult holds the three fixed-size lists produced for a PDF.
type AnalysisResult struct {
	MainPoints  []string `json:"mainPoints"`
	KeyInsights []string `json:"keyInsights"`
	ActionItems []string `json:"actionItems"`
}

// Outcome is what the final stage of every pipeline produces.
type Outcome struct {
	Text     string
	Title    string
	Language string
	Analysis *AnalysisResult
}

// Audio is a local audio file produced by the downloader.
type Audio struct {
	Path      string
	Title     string
	SourceURL string
	Duration  time.Duration
}

// Segment is one recognized span of speech with absolute timing.
type Segment struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Text  string        `json:"text"`
}

// Transcript is the speech model output for a whole audio file.
type Transcript struct {
	Title     string
	SourceURL string
	Language  string
	Segments  []Segment
}

// Document is raw text extracted from a PDF file.
type Document struct {
	Path  string
	Pages []string
}

// SummaryTargets configures how many items each analysis section may hold.
type SummaryTargets struct {
	MainPoints  int `json:"mainPoints" yaml:"main_points"`
	KeyInsights int `json:"keyInsights" yaml:"key_insights"`
	ActionItems int `json:"actionItems" yaml:"action_items"`
}

// Settings contains user-selectable runtime configuration.
type Settings struct {
	ModelSize           string         `json:"modelSize" yaml:"model_size"`
	ModelPath           string         `json:"modelPath" yaml:"model_path"`
	ModelDir            string         `json:"modelDir" yaml:"model_dir"`
	OutputDir           string         `json:"outputDir" yaml:"output_dir"`
	Language            string         `json:"language" yaml:"language"`
	ChunkSeconds        int            `json:"chunkSeconds" yaml:"chunk_seconds"`
	ChunkOverlapSeconds int            `json:"chunkOverlapSeconds" yaml:"chunk_overlap_seconds"`
	ParagraphPauseMs    int            `json:"paragraphPauseMs" yaml:"paragraph_pause_ms"`
	Summary             SummaryTargets `json:"summary" yaml:"summary"`
	KeepAudio           bool           `json:"keepAudio" yaml:"keep_audio"`
}
