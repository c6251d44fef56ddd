package tasks

import (
	"crypto/rand"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/shlex"
	xe "github.com/whole-tale/gwvolman/pkg/errors"
)

// DefaultMemLimit is the memory limit of sessions whose config does not tell a valid one.
const DefaultMemLimit int64 = 2 * 1024 * 1024 * 1024

var sizeNotation = regexp.MustCompile(`^(\d+)([kmg]?b?)$`)

// SizeToBytes parses size notation like "2g", "512mb" or "1024".
func SizeToBytes(size string) (int64, error) {
	m := sizeNotation.FindStringSubmatch(strings.ToLower(strings.TrimSpace(size)))
	if m == nil {
		return 0, fmt.Errorf("invalid size notation: %q", size)
	}
	val, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, xe.Wrap(err)
	}
	switch {
	case strings.HasPrefix(m[2], "k"):
		val *= 1024
	case strings.HasPrefix(m[2], "m"):
		val *= 1024 * 1024
	case strings.HasPrefix(m[2], "g"):
		val *= 1024 * 1024 * 1024
	}
	return val, nil
}

// MemLimit is the memory limit in bytes for a memLimit config value.
//
// nil means "2g". An invalid value is DefaultMemLimit.
func MemLimit(memLimit *string) int64 {
	if memLimit == nil {
		return DefaultMemLimit
	}
	v, err := SizeToBytes(*memLimit)
	if err != nil {
		return DefaultMemLimit
	}
	return v
}

// EnvWithCSP returns env with CSP_HOSTS allowing the dashboard to frame the session.
//
// An existing CSP_HOSTS entry is replaced, otherwise it is appended.
func EnvWithCSP(env []string, dashboardUrl string) []string {
	csp := fmt.Sprintf("CSP_HOSTS='self' %s", dashboardUrl)
	ret := make([]string, 0, len(env)+1)
	replaced := false
	for _, kv := range env {
		if strings.HasPrefix(kv, "CSP_HOSTS=") {
			ret = append(ret, csp)
			replaced = true
			continue
		}
		ret = append(ret, kv)
	}
	if !replaced {
		ret = append(ret, csp)
	}
	return ret
}

// RenderTemplate replaces "{name}" placeholders in tmpl with values.
//
// "{{" and "}}" are literal braces. Placeholders without value are kept as they are.
func RenderTemplate(tmpl string, values map[string]string) string {
	b := new(strings.Builder)
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch {
		case c == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			b.WriteByte('{')
			i++
		case c == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			b.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(tmpl[i:], '}')
			if end < 0 {
				b.WriteString(tmpl[i:])
				return b.String()
			}
			key := tmpl[i+1 : i+end]
			if v, ok := values[key]; ok {
				b.WriteString(v)
			} else {
				b.WriteString(tmpl[i : i+end+1])
			}
			i += end
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// SplitCommand splits a command line into arguments as a POSIX shell does.
func SplitCommand(command string) ([]string, error) {
	args, err := shlex.Split(command)
	if err != nil {
		return nil, xe.WrapWithNote(fmt.Sprintf("cannot parse command %q", command), err)
	}
	return args, nil
}

const alphanumerics = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomString returns a random string of ascii letters and digits.
func RandomString(n int) string {
	max := big.NewInt(int64(len(alphanumerics)))
	b := make([]byte, n)
	for i := range b {
		j, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		b[i] = alphanumerics[j.Int64()]
	}
	return string(b)
}

const shortenPlaceholder = " [...]"

// Shorten collapses whitespaces in text, and truncates it at a word boundary
// to fit in width with a placeholder " [...]".
//
// width is in characters, not bytes.
func Shorten(text string, width int) string {
	words := strings.Fields(text)
	joined := strings.Join(words, " ")
	if utf8.RuneCountInString(joined) <= width {
		return joined
	}

	room := width - utf8.RuneCountInString(shortenPlaceholder)
	kept := []string{}
	length := 0
	for _, w := range words {
		l := utf8.RuneCountInString(w)
		if len(kept) != 0 {
			l += 1
		}
		if length+l > room {
			break
		}
		kept = append(kept, w)
		length += l
	}
	if len(kept) == 0 {
		return strings.TrimSpace(shortenPlaceholder)
	}
	return strings.Join(kept, " ") + shortenPlaceholder
}

// ChownTree changes the owner of root and everything under it.
func ChownTree(root string, uid int, gid int) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := os.Lchown(path, uid, gid); err != nil {
			return xe.Wrap(err)
		}
		return nil
	})
}
