package mcp

// SearchImagesInput defines the input schema for the search_images tool.
type SearchImagesInput struct {
	Query string `json:"query" jsonschema:"what the image shows or the text written on it"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10, max 50"`
}

// SearchImagesOutput defines the output schema for the search_images tool.
type SearchImagesOutput struct {
	Results []ImageResult `json:"results" jsonschema:"images ranked by relevance"`
}

// ImageResult is one ranked image.
type ImageResult struct {
	Path         string  `json:"path" jsonschema:"absolute path of the image"`
	Score        float64 `json:"score" jsonschema:"weighted relevance score between 0 and 1"`
	Semantic     float64 `json:"semantic" jsonschema:"image-text similarity component"`
	Lexical      float64 `json:"lexical" jsonschema:"OCR text match component"`
	OCRPreview   string  `json:"ocr_preview,omitempty" jsonschema:"text recognized in the image"`
	MIMEType     string  `json:"mime_type" jsonschema:"MIME type of the original image"`
	ThumbnailURI string  `json:"thumbnail_uri" jsonschema:"resource URI of the JPEG thumbnail"`
}

// SyncStatusInput defines the input schema for the sync_status tool (no parameters).
type SyncStatusInput struct{}

// SyncStatusOutput defines the output schema for the sync_status tool.
type SyncStatusOutput struct {
	Status         string   `json:"status" jsonschema:"idle, syncing, ready or error"`
	Syncing        bool     `json:"syncing"`
	ProgressPct    float64  `json:"progress_pct" jsonschema:"progress of the running pass, 0-100"`
	CurrentFile    string   `json:"current_file,omitempty"`
	ElapsedSeconds int      `json:"elapsed_seconds"`
	Passes         int      `json:"passes" jsonschema:"completed passes since start"`
	LastIndexed    int      `json:"last_indexed" jsonschema:"images embedded by the last pass"`
	LastRemoved    int      `json:"last_removed" jsonschema:"entries removed by the last pass"`
	ErrorMessage   string   `json:"error_message,omitempty"`
	Folders        []string `json:"folders"`
	Entries        int      `json:"entries" jsonschema:"images in the index"`
	Model          string   `json:"model"`
	Dimensions     int      `json:"dimensions"`
	Watching       bool     `json:"watching"`
}

// StartSyncInput defines the input schema for the start_sync tool (no parameters).
type StartSyncInput struct{}

// StartSyncOutput defines the output schema for the start_sync tool.
type StartSyncOutput struct {
	Started bool   `json:"started" jsonschema:"false when a pass was already running"`
	Message string `json:"message"`
}
