package cache

import (
	"bytes"
	"io"
	"net/http"
	"time"
)

// Response 是一次完整响应的快照。正文整体缓冲，便于同时返回给调用方与写入缓存。
type Response struct {
	URL      string      `json:"url"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"stored_at,omitempty"`
}

// NewResponse 读取 body 全部内容构造快照，调用方负责关闭 body。
func NewResponse(url string, status int, header http.Header, body io.Reader) (*Response, error) {
	var buf bytes.Buffer
	if body != nil {
		if _, err := io.Copy(&buf, body); err != nil {
			return nil, err
		}
	}
	return &Response{
		URL:    url,
		Status: status,
		Header: header.Clone(),
		Body:   buf.Bytes(),
	}, nil
}

// Clone 返回深拷贝，写入缓存与返回调用方的副本互不影响。
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	cloned := *r
	cloned.Header = r.Header.Clone()
	if r.Body != nil {
		cloned.Body = append([]byte(nil), r.Body...)
	}
	return &cloned
}

// OK 对应 fetch 语义中的 response.ok（2xx）。
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// ContentType 返回 Content-Type 头。
func (r *Response) ContentType() string {
	if r == nil || r.Header == nil {
		return ""
	}
	return r.Header.Get("Content-Type")
}
