package proxy

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"mime"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/sipico/preview-gate/internal/gate"
)

// maxInjectBytes caps how much of an HTML body is buffered for injection.
// Larger pages are passed through without a banner.
const maxInjectBytes = 8 << 20

var bodyClose = regexp.MustCompile(`(?i)</body\s*>`)

// The countdown script mirrors FormatCountdown.
var bannerTemplate = template.Must(template.New("banner").Parse(`<div id="preview-gate-banner" data-expires="{{.ExpiresMillis}}" style="position:fixed;left:0;right:0;bottom:0;z-index:2147483647;padding:8px 16px;background:#1d2327;color:#fff;font:14px/1.4 sans-serif;text-align:center">` +
	`Preview for <strong>{{.ClientName}}</strong> &middot; link expires in <span class="preview-gate-countdown">{{.Remaining}}</span>` +
	`</div>` +
	`<script>(function(){` +
	`var el=document.getElementById("preview-gate-banner");if(!el)return;` +
	`var out=el.querySelector(".preview-gate-countdown");var end=parseInt(el.getAttribute("data-expires"),10);` +
	`function tick(){var r=Math.floor((end-Date.now())/1000);if(r<=0){out.textContent="Expired";return false;}` +
	`var d=Math.floor(r/86400),h=Math.floor(r%86400/3600),m=Math.floor(r%3600/60),s=r%60;` +
	`out.textContent=d+"d "+h+"h "+m+"m "+s+"s";return true;}` +
	`if(tick()){var t=setInterval(function(){if(!tick())clearInterval(t);},1000);}` +
	`})();</script>`))

type bannerData struct {
	ClientName    string
	ExpiresMillis int64
	Remaining     string
}

// FormatCountdown renders the time left as "Xd Xh Xm Xs", or "Expired" once
// nothing is left.
func FormatCountdown(left time.Duration) string {
	secs := int64(left / time.Second)
	if secs <= 0 {
		return "Expired"
	}
	return fmt.Sprintf("%dd %dh %dm %ds", secs/86400, secs%86400/3600, secs%3600/60, secs%60)
}

// RenderBanner returns the banner markup for b as of now.
func RenderBanner(b gate.Banner, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	err := bannerTemplate.Execute(&buf, bannerData{
		ClientName:    b.ClientName,
		ExpiresMillis: b.ExpiresAt.UnixMilli(),
		Remaining:     FormatCountdown(b.ExpiresAt.Sub(now)),
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Inject places fragment before the last </body> tag of page, or at the end
// when there is none.
func Inject(page, fragment []byte) []byte {
	at := len(page)
	if locs := bodyClose.FindAllIndex(page, -1); len(locs) > 0 {
		at = locs[len(locs)-1][0]
	}

	out := make([]byte, 0, len(page)+len(fragment))
	out = append(out, page[:at]...)
	out = append(out, fragment...)
	return append(out, page[at:]...)
}

func isInjectable(resp *http.Response) bool {
	if resp.StatusCode != http.StatusOK || resp.Request.Method == http.MethodHead {
		return false
	}
	if enc := resp.Header.Get("Content-Encoding"); enc != "" && enc != "identity" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return err == nil && mediaType == "text/html"
}

func (h *Handler) injectBanner(resp *http.Response, b gate.Banner) error {
	if !isInjectable(resp) {
		return nil
	}

	page, err := io.ReadAll(io.LimitReader(resp.Body, maxInjectBytes+1))
	if err != nil {
		return fmt.Errorf("failed to read upstream body: %w", err)
	}
	if len(page) > maxInjectBytes {
		resp.Body = readCloser{io.MultiReader(bytes.NewReader(page), resp.Body), resp.Body}
		return nil
	}
	_ = resp.Body.Close() //nolint:errcheck

	fragment, err := RenderBanner(b, h.now())
	if err != nil {
		return fmt.Errorf("failed to render banner: %w", err)
	}

	out := Inject(page, fragment)
	resp.Body = io.NopCloser(bytes.NewReader(out))
	resp.ContentLength = int64(len(out))
	resp.Header.Set("Content-Length", strconv.Itoa(len(out)))
	return nil
}

// readCloser reattaches the original Closer to a rebuilt body.
type readCloser struct {
	io.Reader
	io.Closer
}
