package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"xhs_copycat/generator"
)

type runResp struct {
	RunID   string           `json:"run_id"`
	Result  generator.Result `json:"result"`
	History []generator.Turn `json:"history"`
}

type errorResp struct {
	Error  string            `json:"error"`
	Field  string            `json:"field,omitempty"`
	Result *generator.Result `json:"result,omitempty"`
}

type rewriteReq struct {
	Index *int   `json:"index"`
	Title string `json:"title"`
}

type rewriteResp struct {
	RunID   string           `json:"run_id"`
	Turn    generator.Turn   `json:"turn"`
	History []generator.Turn `json:"history"`
}

func (s *Server) handleRunCreate(c *gin.Context) {
	in, err := inputFromForm(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	res, err := s.pipeline().Run(c.Request.Context(), in)
	if err != nil {
		status, body := s.runError(res, err)
		c.JSON(status, body)
		return
	}
	sess := generator.NewSession(res, s.agent)
	s.store.set(sess.ID, sess)
	c.JSON(http.StatusOK, runResp{RunID: sess.ID, Result: sess.Result(), History: sess.History()})
}

func (s *Server) handleRunGet(c *gin.Context) {
	sess, ok := s.store.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, errorResp{Error: "run not found"})
		return
	}
	c.JSON(http.StatusOK, runResp{RunID: sess.ID, Result: sess.Result(), History: sess.History()})
}

// handleRewrite 换标题重写正文：{"index": n} 选用候选标题，{"title": "..."} 使用自定义标题。
func (s *Server) handleRewrite(c *gin.Context) {
	sess, ok := s.store.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, errorResp{Error: "run not found"})
		return
	}
	var req rewriteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}

	var (
		turn generator.Turn
		err  error
	)
	switch {
	case strings.TrimSpace(req.Title) != "":
		turn, err = sess.Rewrite(c.Request.Context(), req.Title)
	case req.Index != nil:
		turn, err = sess.SelectTitle(c.Request.Context(), *req.Index)
	default:
		c.JSON(http.StatusBadRequest, errorResp{Error: "index or title is required"})
		return
	}
	if err != nil {
		status, body := s.runError(nil, err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, rewriteResp{RunID: sess.ID, Turn: turn, History: sess.History()})
}

// handleExport 把当前结果（含最近一次重写的正文）导出为报告文件。
func (s *Server) handleExport(c *gin.Context) {
	sess, ok := s.store.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, errorResp{Error: "run not found"})
		return
	}
	res := sess.Result()
	dir, err := s.exporter.Publish(&res, s.outputDir)
	if err != nil {
		s.log.Error().Err(err).Str("run_id", sess.ID).Msg("export failed")
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": sess.ID, "dir": dir})
}

func (s *Server) handleCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, s.agent.Catalog())
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.Snapshot())
}

// runError 校验错误 → 400，其余（致命错误）→ 502。
func (s *Server) runError(res *generator.Result, err error) (int, errorResp) {
	var verr *generator.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, errorResp{Error: verr.Error(), Field: verr.Field}
	}
	s.log.Error().Err(err).Msg("run failed")
	return http.StatusBadGateway, errorResp{Error: err.Error(), Result: res}
}

func inputFromForm(c *gin.Context) (generator.Input, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return generator.Input{}, fmt.Errorf("invalid multipart form: %w", err)
	}
	in := generator.Input{
		Product: generator.ProductFacts{
			Name:  strings.TrimSpace(formValue(form, "name")),
			Price: strings.TrimSpace(formValue(form, "price")),
		},
		Corpus: generator.TextCorpus{
			Titles:   formValue(form, "titles"),
			Keywords: formValue(form, "keywords"),
		},
	}
	if fhs := form.File["product"]; len(fhs) > 0 {
		if in.Product.Image, err = readUpload(fhs[0]); err != nil {
			return generator.Input{}, err
		}
	}
	if in.Posts, err = readUploads(form.File["posts"]); err != nil {
		return generator.Input{}, err
	}
	if in.Reviews, err = readUploads(form.File["reviews"]); err != nil {
		return generator.Input{}, err
	}
	return in, nil
}

func formValue(form *multipart.Form, key string) string {
	if vs := form.Value[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func readUploads(fhs []*multipart.FileHeader) ([]generator.Image, error) {
	out := make([]generator.Image, 0, len(fhs))
	for _, fh := range fhs {
		img, err := readUpload(fh)
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, nil
}

func readUpload(fh *multipart.FileHeader) (generator.Image, error) {
	f, err := fh.Open()
	if err != nil {
		return generator.Image{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return generator.Image{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	img := generator.Image{Name: fh.Filename, Data: data}
	// 浏览器常用 application/octet-stream，这种情况交给内容嗅探。
	if ct := fh.Header.Get("Content-Type"); strings.HasPrefix(ct, "image/") {
		img.MIMEType = ct
	}
	return img, nil
}
