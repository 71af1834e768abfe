package publisher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Sink stores finished artifacts under a name and reports where they went.
type Sink interface {
	Write(name string, data []byte) (string, error)
}

// DirSink writes artifacts as files under Root.
type DirSink struct {
	Root string
}

// NewDirSink creates root if needed.
func NewDirSink(root string) (*DirSink, error) {
	if root == "" {
		root = "."
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", root, err)
	}
	return &DirSink{Root: root}, nil
}

// Sub returns a sink rooted at a child directory.
func (d *DirSink) Sub(dir string) (*DirSink, error) {
	return NewDirSink(filepath.Join(d.Root, SafeName(dir)))
}

func (d *DirSink) Write(name string, data []byte) (string, error) {
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	path := filepath.Join(d.Root, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", errors.Join(err, os.Remove(tmp))
	}
	return path, nil
}

var unsafeChars = regexp.MustCompile(`[^\p{L}\p{N}_.\-]+`)

// SafeName turns a topic or theme into a file name fragment: whitespace
// becomes underscores and path separators are dropped.
func SafeName(s string) string {
	s = strings.Join(strings.Fields(s), "_")
	s = unsafeChars.ReplaceAllString(s, "")
	s = strings.Trim(s, ".")
	if s == "" {
		return "untitled"
	}
	return s
}

// OutlineFile is the outline name of a single run.
func OutlineFile(topic string) string { return "story_outline_" + SafeName(topic) + ".txt" }

// WorldModelFile is the world model dump name of a single run.
func WorldModelFile(topic string) string { return "ap_model_" + SafeName(topic) + ".json" }

// ReportFile is the HTML report name of a single run.
func ReportFile(topic string) string { return "story_report_" + SafeName(topic) + ".html" }

// BatchDir names the folder of one theme in a batch, tagged with the
// persona count and round count it was generated with.
func BatchDir(theme string, agents, iterations int) string {
	return fmt.Sprintf("%s_A%d_I%d", SafeName(theme), agents, iterations)
}

// StoryFile names the n-th story (1-based) of a theme in a batch.
func StoryFile(theme string, n int) string {
	return fmt.Sprintf("%s_story_%02d.txt", SafeName(theme), n)
}
