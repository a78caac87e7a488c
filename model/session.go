package model

// SessionStatus 会话状态报告
type SessionStatus struct {
	ID         string          `json:"id"`
	Phase      string          `json:"phase"`
	Message    string          `json:"message,omitempty"`
	Revision   uint64          `json:"revision"`
	Background BackgroundState `json:"background"`
	Image      *ImageInfo      `json:"image,omitempty"`
}

// BackgroundState 当前背景设置. The image itself is never echoed back.
type BackgroundState struct {
	Mode     string `json:"mode"`
	Color    string `json:"color"`
	HasImage bool   `json:"has_image"`
}

// ImageInfo 上传图片信息
type ImageInfo struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	MIMEType  string       `json:"mime_type"`
	Size      int          `json:"size"`
	Processed bool         `json:"processed"`
	Subject   *SubjectInfo `json:"subject,omitempty"`
}

// SubjectInfo 抠图结果信息
type SubjectInfo struct {
	Width       int   `json:"width"`
	Height      int   `json:"height"`
	Transparent bool  `json:"transparent"`
	BoundingBox *BBox `json:"bounding_box,omitempty"`
}

// BBox 边界框
type BBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// BackgroundRequest sets the background. Empty fields keep their current value;
// a non-empty ImageURL downloads the image and switches to image mode unless
// Mode says otherwise.
type BackgroundRequest struct {
	Mode     string `json:"mode"`
	Color    string `json:"color"`
	ImageURL string `json:"image_url"`
}

// Presets 预设背景
type Presets struct {
	Colors      []string `json:"colors"`
	Backgrounds []string `json:"backgrounds"`
}

// SessionResponse 会话响应
type SessionResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    *SessionStatus `json:"data,omitempty"`
}

// PresetsResponse 预设响应
type PresetsResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Data    *Presets `json:"data,omitempty"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}
