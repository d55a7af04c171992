package domain

// WhisperModelOption describes one downloadable whisper.cpp model preset.
type WhisperModelOption struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	FileName    string `json:"fileName" yaml:"file_name"`
	URL         string `json:"url" yaml:"url"`
	SizeLabel   string `json:"sizeLabel,omitempty" yaml:"size_label,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Downloaded  bool   `json:"downloaded" yaml:"downloaded"`
	LocalPath   string `json:"localPath,omitempty" yaml:"local_path,omitempty"`
}
