package api

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/samcharles93/tokquant/internal/logger"
	"github.com/samcharles93/tokquant/pkg/float8"
	"github.com/samcharles93/tokquant/pkg/quant"
)

// DefaultMaxElements caps rows*cols for a single request.
const DefaultMaxElements = 1 << 24

const (
	// maxBytesPerElement is the widest JSON rendering of one float32 in the
	// data array, separator included.
	maxBytesPerElement = 32
	bodyOverhead       = 64 << 10
)

// MaxBodyBytes is the request body size that admits maxElements values.
func MaxBodyBytes(maxElements int) int64 {
	if maxElements <= 0 {
		maxElements = DefaultMaxElements
	}
	return int64(maxElements)*maxBytesPerElement + bodyOverhead
}

type Config struct {
	Quantizer   *quant.Quantizer
	Store       *QuantizationStore
	Logger      logger.Logger
	MaxElements int
}

type Server struct {
	quantizer   *quant.Quantizer
	store       *QuantizationStore
	log         logger.Logger
	maxElements int
	clock       func() time.Time
}

func NewServer(cfg Config) *Server {
	s := &Server{
		quantizer:   cfg.Quantizer,
		store:       cfg.Store,
		log:         cfg.Logger,
		maxElements: cfg.MaxElements,
		clock:       time.Now,
	}
	if s.store == nil {
		s.store = NewQuantizationStore(0)
	}
	if s.log == nil {
		s.log = logger.Discard()
	}
	if s.maxElements <= 0 {
		s.maxElements = DefaultMaxElements
	}
	return s
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/formats", s.handleFormats)
	e.POST("/v1/quantize", s.handleQuantize, middleware.BodyLimit(MaxBodyBytes(s.maxElements)))
	e.GET("/v1/quantizations/:id", s.handleGetQuantization)
	e.DELETE("/v1/quantizations/:id", s.handleDeleteQuantization)
}

func (s *Server) handleFormats(c *echo.Context) error {
	routes := quant.SupportedRoutes()
	list := FormatList{Object: "list", Data: make([]Format, 0, len(routes))}
	for _, r := range routes {
		qmax, _ := quant.QMax(r[1])
		list.Data = append(list.Data, Format{Input: r[0].String(), Target: r[1].String(), QMax: qmax})
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) handleQuantize(c *echo.Context) error {
	if s.quantizer == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "quantizer not configured", "", "")
	}
	req, err := decodeJSON[QuantizeRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	in, target, err := s.buildInput(req)
	if err != nil {
		return writeQuantizeError(c, err)
	}

	start := s.clock()
	out, scales, err := s.quantizer.Quantize(in, target)
	if err != nil {
		s.log.Debug("quantize rejected", "input", in.DType().String(), "target", target.String(), "error", err)
		return writeQuantizeError(c, err)
	}

	codes, values, err := codesOf(out)
	if err != nil {
		return writeQuantizeError(c, err)
	}
	shape := out.Shape()
	rows, cols := shape[0], shape[1]
	resp := &Quantization{
		ID:         newQuantizationID(),
		Object:     "quantization",
		CreatedAt:  start.Unix(),
		InputDType: in.DType().String(),
		Target:     target.String(),
		Rows:       rows,
		Cols:       cols,
		Codes:      codes,
		Values:     values,
		Scales:     scales.Data,
	}
	if req.Store == nil || *req.Store {
		s.store.Put(resp)
	}
	s.log.Info("quantized",
		"id", resp.ID,
		"input", resp.InputDType,
		"target", resp.Target,
		"rows", rows,
		"cols", cols,
		"elapsed", s.clock().Sub(start),
	)
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) buildInput(req QuantizeRequest) (quant.Buffer, quant.DType, error) {
	inDT, err := quant.ParseDType(req.InputDType)
	if err != nil {
		return nil, 0, newInvalidRequest("input_dtype", err.Error())
	}
	target, err := quant.ParseDType(req.Target)
	if err != nil {
		return nil, 0, newInvalidRequest("target", err.Error())
	}
	if req.Rows < 0 || req.Cols < 0 {
		return nil, 0, newInvalidRequest("rows", fmt.Sprintf("invalid shape %dx%d", req.Rows, req.Cols))
	}
	if req.Rows > 0 && req.Cols > s.maxElements/req.Rows {
		return nil, 0, newInvalidRequest("rows", fmt.Sprintf("%dx%d exceeds the limit of %d elements", req.Rows, req.Cols, s.maxElements))
	}

	switch {
	case req.Data != nil && req.DataBase64 != "":
		return nil, 0, newInvalidRequest("data", "data and data_base64 are mutually exclusive")
	case req.DataBase64 != "":
		raw, err := base64.StdEncoding.DecodeString(req.DataBase64)
		if err != nil {
			return nil, 0, newInvalidRequest("data_base64", err.Error())
		}
		in, err := quant.FromRaw(inDT, req.Rows, req.Cols, raw)
		if err != nil {
			return nil, 0, err
		}
		return in, target, nil
	default:
		in, err := quant.FromFloat32(inDT, req.Rows, req.Cols, req.Data)
		if err != nil {
			return nil, 0, err
		}
		return in, target, nil
	}
}

func codesOf(b quant.Buffer) ([]int, []float32, error) {
	switch m := b.(type) {
	case *quant.Matrix[int8]:
		codes := make([]int, len(m.Data))
		values := make([]float32, len(m.Data))
		for i, v := range m.Data {
			codes[i] = int(v)
			values[i] = float32(v)
		}
		return codes, values, nil
	case *quant.Matrix[float8.E4M3]:
		codes := make([]int, len(m.Data))
		values := make([]float32, len(m.Data))
		for i, v := range m.Data {
			codes[i] = int(v.Bits())
			values[i] = v.Float32()
		}
		return codes, values, nil
	default:
		return nil, nil, fmt.Errorf("unexpected output buffer %T", b)
	}
}

func (s *Server) handleGetQuantization(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return writeNotFound(c, "quantization not found")
	}
	q, ok := s.store.Get(id)
	if !ok {
		return writeNotFound(c, "quantization not found")
	}
	return c.JSON(http.StatusOK, q)
}

func (s *Server) handleDeleteQuantization(c *echo.Context) error {
	id := c.Param("id")
	if id == "" || !s.store.Delete(id) {
		return writeNotFound(c, "quantization not found")
	}
	return c.JSON(http.StatusOK, DeleteResponse{
		ID:      id,
		Object:  "quantization",
		Deleted: true,
	})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
