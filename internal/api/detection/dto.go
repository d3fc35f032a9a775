package detection

import "detectbench/internal/entity"

const NoOpMessage = "client-side-only, no server inference"

// DetectForm is the non-file part of the multipart upload. The letterbox
// fields are only meaningful for strategy B.
type DetectForm struct {
	Strategy string  `form:"strategy"`
	OrigW    int     `form:"orig_w" validate:"omitempty,gt=0"`
	OrigH    int     `form:"orig_h" validate:"omitempty,gt=0"`
	Ratio    float64 `form:"ratio" validate:"omitempty,gt=0"`
	PadX     float64 `form:"pad_x" validate:"omitempty,gte=0"`
	PadY     float64 `form:"pad_y" validate:"omitempty,gte=0"`
}

// Letterbox returns nil unless the form describes a complete mapping.
func (f DetectForm) Letterbox() *entity.Letterbox {
	lb := entity.Letterbox{
		Ratio: f.Ratio,
		PadX:  f.PadX,
		PadY:  f.PadY,
		OrigW: f.OrigW,
		OrigH: f.OrigH,
	}
	if !lb.Valid() {
		return nil
	}
	return &lb
}

type Timings struct {
	ServerRecvPre float64 `json:"server_recv_pre"`
	ServerInfer   float64 `json:"server_infer"`
	ServerPost    float64 `json:"server_post"`
}

type RenderedResponse struct {
	Strategy string  `json:"strategy"`
	Original string  `json:"original"`
	Detected string  `json:"detected"`
	Timings  Timings `json:"timings"`
}

type BoxListResponse struct {
	Strategy string       `json:"strategy"`
	Original string       `json:"original"`
	Boxes    []entity.Box `json:"boxes"`
	Timings  Timings      `json:"timings"`
}

type NoOpResponse struct {
	Strategy string `json:"strategy"`
	Msg      string `json:"msg"`
}
