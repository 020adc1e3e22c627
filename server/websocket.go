package server

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"xhs_copycat/generator"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsImage 图片以 base64 传输，允许带 data URI 前缀。
type wsImage struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type wsRunRequest struct {
	Name     string    `json:"name"`
	Price    string    `json:"price"`
	Titles   string    `json:"titles"`
	Keywords string    `json:"keywords"`
	Product  wsImage   `json:"product"`
	Posts    []wsImage `json:"posts"`
	Reviews  []wsImage `json:"reviews"`
}

// wsEvent type 为 progress / result / error 之一。
type wsEvent struct {
	Type     string              `json:"type"`
	Progress *generator.Progress `json:"progress,omitempty"`
	Result   *runResp            `json:"result,omitempty"`
	Error    string              `json:"error,omitempty"`
	Field    string              `json:"field,omitempty"`
}

// handleRunStream 客户端发送一条运行请求，服务端逐条推送进度，最后推送结果或错误。
// 客户端断开会取消运行。
func (s *Server) handleRunStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	var req wsRunRequest
	if err := conn.ReadJSON(&req); err != nil {
		s.send(conn, wsEvent{Type: "error", Error: "invalid run request: " + err.Error()})
		return
	}
	in, err := req.input()
	if err != nil {
		s.send(conn, wsEvent{Type: "error", Error: err.Error()})
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	p := s.pipeline()
	p.SetProgressCallback(func(pr generator.Progress) {
		s.send(conn, wsEvent{Type: "progress", Progress: &pr})
	})
	res, err := p.Run(ctx, in)
	if err != nil {
		_, body := s.runError(res, err)
		s.send(conn, wsEvent{Type: "error", Error: body.Error, Field: body.Field})
		return
	}
	sess := generator.NewSession(res, s.agent)
	s.store.set(sess.ID, sess)
	s.send(conn, wsEvent{Type: "result", Result: &runResp{RunID: sess.ID, Result: sess.Result(), History: sess.History()}})
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
		time.Now().Add(wsWriteTimeout))
}

func (s *Server) send(conn *websocket.Conn, ev wsEvent) {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(ev); err != nil {
		s.log.Debug().Err(err).Str("type", ev.Type).Msg("websocket write failed")
	}
}

func (r wsRunRequest) input() (generator.Input, error) {
	product, err := r.Product.decode("product")
	if err != nil {
		return generator.Input{}, err
	}
	posts, err := decodeImages("posts", r.Posts)
	if err != nil {
		return generator.Input{}, err
	}
	reviews, err := decodeImages("reviews", r.Reviews)
	if err != nil {
		return generator.Input{}, err
	}
	return generator.Input{
		Product: generator.ProductFacts{
			Name:  strings.TrimSpace(r.Name),
			Price: strings.TrimSpace(r.Price),
			Image: product,
		},
		Corpus:  generator.TextCorpus{Titles: r.Titles, Keywords: r.Keywords},
		Posts:   posts,
		Reviews: reviews,
	}, nil
}

func decodeImages(field string, imgs []wsImage) ([]generator.Image, error) {
	out := make([]generator.Image, 0, len(imgs))
	for i, img := range imgs {
		decoded, err := img.decode(fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return nil, err
		}
		out = append(out, decoded)
	}
	return out, nil
}

func (w wsImage) decode(field string) (generator.Image, error) {
	data := strings.TrimSpace(w.Data)
	mimeType := w.MIMEType
	// data:image/png;base64,....
	if strings.HasPrefix(data, "data:") {
		if i := strings.Index(data, ","); i > 0 {
			header := strings.TrimPrefix(data[:i], "data:")
			if mimeType == "" {
				mimeType = strings.TrimSuffix(header, ";base64")
			}
			data = data[i+1:]
		}
	}
	// 非图片类型交给 mimetype 识别
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = ""
	}
	if data == "" {
		return generator.Image{Name: w.Name, MIMEType: mimeType}, nil
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return generator.Image{}, fmt.Errorf("%s: invalid base64 image: %w", field, err)
	}
	return generator.Image{Name: w.Name, Data: raw, MIMEType: mimeType}, nil
}
