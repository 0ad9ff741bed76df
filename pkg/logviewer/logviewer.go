// Package logviewer 提供一个只读的日志查看 HTTP 服务：列出按周期切分
// 的日志文件并支持 tail 查看，方便远程盯盘时排查问题。
package logviewer

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const maxTailLines = 5000

// Server 日志查看服务
type Server struct {
	logsDir string
	log     *logrus.Entry
}

func New(logsDir string) *Server {
	return &Server{
		logsDir: logsDir,
		log:     logrus.WithField("component", "logviewer"),
	}
}

// Router 构建路由
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/logs", s.handleList)
	r.GET("/logs/:name", s.handleTail)
	return r
}

// Start 在后台启动服务，addr 为空时不启动
func (s *Server) Start(addr string) {
	if strings.TrimSpace(addr) == "" {
		return
	}
	go func() {
		s.log.Infof("📄 日志查看服务: http://%s/logs", addr)
		if err := http.ListenAndServe(addr, s.Router()); err != nil {
			s.log.Errorf("日志查看服务退出: %v", err)
		}
	}()
}

type logFileInfo struct {
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	ModTime int64  `json:"mod_time"`
}

func (s *Server) handleList(c *gin.Context) {
	entries, err := os.ReadDir(s.logsDir)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	files := make([]logFileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, logFileInfo{
			Name:    e.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime().Unix(),
		})
	}
	// 新的在前
	sort.Slice(files, func(i, j int) bool { return files[i].ModTime > files[j].ModTime })
	c.JSON(http.StatusOK, gin.H{"files": files})
}

func (s *Server) handleTail(c *gin.Context) {
	name := c.Param("name")
	// 禁止路径穿越
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "非法文件名"})
		return
	}

	tailN := 200
	if v := c.Query("tail"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= maxTailLines {
			tailN = n
		}
	}

	lines, err := tailLines(filepath.Join(s.logsDir, name), tailN, 256*1024)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "日志文件不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "lines": lines})
}

// tailLines 读取文件末尾最多 n 行，最多回看 maxBytes 字节
func tailLines(path string, n int, maxBytes int64) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	size := info.Size()
	offset := int64(0)
	if size > maxBytes {
		offset = size - maxBytes
	}
	if _, err := f.Seek(offset, 0); err != nil {
		return nil, err
	}

	buf := make([]byte, size-offset)
	if _, err := f.Read(buf); err != nil {
		return nil, err
	}

	lines := strings.Split(strings.TrimRight(string(buf), "\n"), "\n")
	// 从截断点开始的第一行可能不完整，丢掉
	if offset > 0 && len(lines) > 0 {
		lines = lines[1:]
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}
