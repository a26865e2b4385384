package api

// QuantizeRequest carries one matrix. Exactly one of Data (values rounded
// into InputDType) or DataBase64 (little-endian InputDType elements) is set.
type QuantizeRequest struct {
	InputDType string    `json:"input_dtype"`
	Target     string    `json:"target"`
	Rows       int       `json:"rows"`
	Cols       int       `json:"cols"`
	Data       []float32 `json:"data,omitempty"`
	DataBase64 string    `json:"data_base64,omitempty"`
	Store      *bool     `json:"store,omitempty"`
}

// Quantization is a quantized matrix. Codes holds int8 values for I8 and
// raw E4M3 bit patterns for F8_E4M3; Values holds the decoded codes.
type Quantization struct {
	ID         string    `json:"id"`
	Object     string    `json:"object"`
	CreatedAt  int64     `json:"created_at"`
	InputDType string    `json:"input_dtype"`
	Target     string    `json:"target"`
	Rows       int       `json:"rows"`
	Cols       int       `json:"cols"`
	Codes      []int     `json:"codes"`
	Values     []float32 `json:"values"`
	Scales     []float32 `json:"scales"`
}

type Format struct {
	Input  string  `json:"input"`
	Target string  `json:"target"`
	QMax   float32 `json:"qmax"`
}

type FormatList struct {
	Object string   `json:"object"`
	Data   []Format `json:"data"`
}

type DeleteResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}
