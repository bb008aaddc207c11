package commands

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

const (
	userAgent    = "MinAI/1.0 (+https://github.com/minai/minai)"
	maxBodyBytes = 1 << 20
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// RegisterNetwork installs ping, curl, download and upload.
func RegisterNetwork(reg *Registry, env Env) {
	fs := env.FS

	reg.Register(Spec{
		Name:        "ping",
		Description: "Test connectivity to a host",
		Usage:       "ping <host>",
		Category:    CategoryNetwork,
		Handler: func(ctx context.Context, inv *Invocation) (string, error) {
			host := inv.Arg(0)
			if host == "" {
				return "", usage("ping <host>")
			}
			return ping(ctx, env, host)
		},
	})

	reg.Register(Spec{
		Name:        "curl",
		Description: "Transfer data from a URL",
		Usage:       "curl [-I] [-s] [-o file] <url>",
		Category:    CategoryNetwork,
		Handler: func(ctx context.Context, inv *Invocation) (string, error) {
			args := inv.Operands()
			var outFile string
			if inv.Flags.Has('o') {
				if len(args) < 2 {
					return "", usage("curl [-I] [-s] [-o file] <url>")
				}
				outFile, args = args[0], args[1:]
			}
			if len(args) == 0 {
				return "", usage("curl [-I] [-s] [-o file] <url>")
			}
			target := normalizeURL(args[len(args)-1])
			env.UI.Print("curl: try connecting to "+target+"...", KindSystem)

			res, err := fetch(ctx, env.HTTP, target, inv.Flags.Has('I'))
			if err != nil {
				env.Logger.Debug("curl failed", zap.String("url", target), zap.Error(err))
				return "", failf("curl: Failed to connect to %s", target)
			}
			switch {
			case inv.Flags.Has('I'):
				return res.headerBlock(), nil
			case outFile != "":
				if err := fs.Write(outFile, string(res.body), false); err != nil {
					return "", err
				}
				return fmt.Sprintf("Saved %d bytes to %s", len(res.body), outFile), nil
			case inv.Flags.Has('s'):
				return summarizePage(res.body), nil
			}
			return string(res.body), nil
		},
	})

	reg.Register(Spec{
		Name:            "download",
		Description:     "Download a file from the virtual filesystem",
		Usage:           "download <file>",
		Category:        CategoryNetwork,
		NeedsPermission: true,
		Handler: func(_ context.Context, inv *Invocation) (string, error) {
			name := inv.Arg(0)
			if name == "" {
				return "", usage("download <file>")
			}
			content, err := fs.Cat(name)
			if err != nil {
				return "", err
			}
			where, err := env.UI.SaveDownload(path.Base(name), content)
			if err != nil {
				return "", failf("Error downloading %s: %v", name, err)
			}
			return fmt.Sprintf("Downloaded %s to %s", name, where), nil
		},
	})

	reg.Register(Spec{
		Name:            "upload",
		Description:     "Upload a file into the current directory",
		Usage:           "upload",
		Category:        CategoryNetwork,
		NeedsPermission: true,
		Handler: func(ctx context.Context, _ *Invocation) (string, error) {
			name, content, err := env.UI.PickUpload(ctx)
			if err != nil {
				return "", failf("Error uploading %s: %v", name, err)
			}
			name = SanitizeUploadName(name)
			if name == "" {
				return "Upload cancelled.", nil
			}
			if err := fs.Write(name, string(content), false); err != nil {
				return "", failf("Error uploading %s: %v", name, err)
			}
			return "Successfully uploaded " + name, nil
		},
	})
}

// SanitizeUploadName replaces whitespace runs and path separators so an
// uploaded file lands directly in the current directory.
func SanitizeUploadName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return whitespaceRun.ReplaceAllString(name, "_")
}

func normalizeURL(raw string) string {
	if strings.Contains(raw, "://") {
		return raw
	}
	return "https://" + raw
}

type fetchResult struct {
	status string
	header http.Header
	body   []byte
}

func (r fetchResult) headerBlock() string {
	keys := make([]string, 0, len(r.header))
	for k := range r.header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := []string{"HTTP/1.1 " + r.status}
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %s", strings.ToLower(k), strings.Join(r.header[k], ", ")))
	}
	return strings.Join(lines, "\n")
}

func fetch(ctx context.Context, client *http.Client, target string, headOnly bool) (fetchResult, error) {
	if _, err := url.ParseRequestURI(target); err != nil {
		return fetchResult{}, err
	}
	method := http.MethodGet
	if headOnly {
		method = http.MethodHead
	}
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return fetchResult{}, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := client.Do(req)
	if err != nil {
		return fetchResult{}, err
	}
	defer resp.Body.Close()

	res := fetchResult{status: resp.Status, header: resp.Header}
	if headOnly {
		return res, nil
	}
	limited := &io.LimitedReader{R: resp.Body, N: maxBodyBytes}
	res.body, err = io.ReadAll(limited)
	if err != nil {
		return fetchResult{}, fmt.Errorf("read body: %w", err)
	}
	return res, nil
}

// summarizePage reduces an HTML body to its title and description. Bodies
// that are not HTML come back trimmed.
func summarizePage(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return strings.TrimSpace(string(body))
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	desc := strings.TrimSpace(doc.Find(`meta[name="description"]`).AttrOr("content", ""))
	if title == "" && desc == "" {
		return strings.TrimSpace(whitespaceRun.ReplaceAllString(doc.Text(), " "))
	}
	var lines []string
	if title != "" {
		lines = append(lines, "Title: "+title)
	}
	if desc != "" {
		lines = append(lines, "Description: "+desc)
	}
	return strings.Join(lines, "\n")
}

func ping(ctx context.Context, env Env, host string) (string, error) {
	target := normalizeURL(host)
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return "", failf("ping: cannot resolve %s: Unknown host", host)
	}
	env.UI.Print(fmt.Sprintf("PING %s (%s): HTTP probe", u.Host, target), KindOutput)

	var rtts []float64
	for seq := 0; seq < env.PingCount; seq++ {
		if seq > 0 && env.PingInterval > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(env.PingInterval):
			}
		}
		start := time.Now()
		_, err := fetch(ctx, env.HTTP, target, true)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if err != nil {
			env.UI.Print(fmt.Sprintf("Request timeout for icmp_seq %d", seq), KindOutput)
			continue
		}
		ms := float64(time.Since(start).Microseconds()) / 1000
		rtts = append(rtts, ms)
		env.UI.Print(fmt.Sprintf("Connected to %s: seq=%d time=%.1f ms", u.Host, seq, ms), KindOutput)
	}
	return pingStatistics(u.Host, env.PingCount, rtts), nil
}

func pingStatistics(host string, sent int, rtts []float64) string {
	received := len(rtts)
	loss := 0
	if sent > 0 {
		loss = (sent - received) * 100 / sent
	}
	lines := []string{
		fmt.Sprintf("--- %s ping statistics ---", host),
		fmt.Sprintf("%d packets transmitted, %d received, %d%% packet loss", sent, received, loss),
	}
	if received == 0 {
		return strings.Join(lines, "\n")
	}
	lo, hi, sum := rtts[0], rtts[0], 0.0
	for _, v := range rtts {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		sum += v
	}
	avg := sum / float64(received)
	variance := 0.0
	for _, v := range rtts {
		variance += (v - avg) * (v - avg)
	}
	stddev := math.Sqrt(variance / float64(received))
	lines = append(lines, fmt.Sprintf("round-trip min/avg/max/stddev = %.3f/%.3f/%.3f/%.3f ms", lo, avg, hi, stddev))
	return strings.Join(lines, "\n")
}
