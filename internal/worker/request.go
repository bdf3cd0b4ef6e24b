package worker

import (
	"net/http"
	"net/url"
	"strings"
)

// ModeNavigate 对应 Sec-Fetch-Mode: navigate，即顶层页面加载。
const ModeNavigate = "navigate"

// Request 是一次被拦截的请求。URL 只需包含 path 与 query。
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
	// Mode 是请求声明的用途（navigate/cors/no-cors/same-origin）。
	Mode string
	Body []byte
}

// NewRequest 构造 GET 请求，常用于测试与 install 预取。
func NewRequest(rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return &Request{Method: http.MethodGet, URL: u, Header: http.Header{}}, nil
}

// Path 返回请求路径，空路径视为 /。
func (r *Request) Path() string {
	if r == nil || r.URL == nil || r.URL.Path == "" {
		return "/"
	}
	return r.URL.Path
}

// Key 返回缓存键：path?query。
func (r *Request) Key() string {
	if r == nil || r.URL == nil {
		return "/"
	}
	key := r.URL.EscapedPath()
	if key == "" {
		key = "/"
	}
	if r.URL.RawQuery != "" {
		key += "?" + r.URL.RawQuery
	}
	return key
}

// Kind 是 FetchRouter 的分类结果。
type Kind string

const (
	KindNavigation Kind = "navigation"
	KindAsset      Kind = "asset"
)

// Classify 判断请求类型：声明为顶层页面加载，或可接受的响应类型包含 HTML，即为 navigation。
func Classify(r *Request) Kind {
	if r == nil {
		return KindAsset
	}
	if r.Mode == ModeNavigate {
		return KindNavigation
	}
	if r.Header != nil && strings.Contains(r.Header.Get("Accept"), "text/html") {
		return KindNavigation
	}
	return KindAsset
}
