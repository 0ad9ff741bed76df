package logviewer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeLog(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("写日志文件失败: %v", err)
	}
}

func TestListLogs(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "combined.1756600200.log", "line1\n")
	writeLog(t, dir, "combined.1756601100.log", "line1\n")
	writeLog(t, dir, "notes.txt", "ignored")

	srv := New(dir)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/logs", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("状态码错误: %d", w.Code)
	}
	var out struct {
		Files []logFileInfo `json:"files"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if len(out.Files) != 2 {
		t.Fatalf("应只列出 .log 文件: %+v", out.Files)
	}
}

func TestTailLog(t *testing.T) {
	dir := t.TempDir()
	content := "line1\nline2\nline3\nline4\nline5\n"
	writeLog(t, dir, "combined.log", content)

	srv := New(dir)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/logs/combined.log?tail=2", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("状态码错误: %d %s", w.Code, w.Body.String())
	}
	var out struct {
		Lines []string `json:"lines"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if len(out.Lines) != 2 || out.Lines[0] != "line4" || out.Lines[1] != "line5" {
		t.Fatalf("tail 结果错误: %+v", out.Lines)
	}
}

func TestTailLogMissing(t *testing.T) {
	srv := New(t.TempDir())
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/logs/nope.log", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("缺失文件应返回 404: %d", w.Code)
	}
}

func TestTailLogRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "combined.log", "secret\n")

	srv := New(dir)
	for _, name := range []string{"..%2Fcombined.log", ".hidden"} {
		w := httptest.NewRecorder()
		srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/logs/"+name, nil))
		if w.Code == http.StatusOK {
			t.Fatalf("路径 %q 不应可读", name)
		}
	}
}

func TestTailLinesTruncation(t *testing.T) {
	dir := t.TempDir()
	var sb strings.Builder
	for i := 0; i < 100; i++ {
		sb.WriteString("0123456789\n")
	}
	path := filepath.Join(dir, "big.log")
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	// 回看窗口只够 50 行左右，首行会被当作不完整行丢弃
	lines, err := tailLines(path, 10, 550)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 10 {
		t.Fatalf("行数错误: %d", len(lines))
	}
	for _, l := range lines {
		if l != "0123456789" {
			t.Fatalf("行内容被截断: %q", l)
		}
	}
}
