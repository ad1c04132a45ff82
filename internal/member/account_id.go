package member

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/hitoshi/rglive/internal/model"
)

// accountIDPattern は正規化後のPandaTVアカウントIDの形式。
// 英数字を最低1文字含む。"." や ".." のような記号だけの値はパスとして解釈されるため受け付けない。
var accountIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]*[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// pandaliveHost はURL形式で保存された値として受け付けるホストのサフィックス。
const pandaliveHost = "pandalive.co.kr"

// ExtractAccountID はsocial_linksに保存された値から正規のアカウントIDを取り出す。
//
// 受け付ける形式:
//   - ID単体: "s22unn22"
//   - URL: "https://www.pandalive.co.kr/play/s22unn22"
//     "/live/play/<id>", "/channel/<id>", "/<id>" のいずれのパスでもよい
//
// それ以外の値はmodel.ErrInvalidAccountIDを返す。
func ExtractAccountID(raw string) (string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", fmt.Errorf("%w: 空の値", model.ErrInvalidAccountID)
	}

	if accountIDPattern.MatchString(v) {
		return v, nil
	}

	if !strings.Contains(v, "://") {
		// スキーム省略の "www.pandalive.co.kr/xxx" も受け付ける
		if !strings.Contains(strings.ToLower(v), pandaliveHost+"/") {
			return "", fmt.Errorf("%w: %q", model.ErrInvalidAccountID, raw)
		}
		v = "https://" + v
	}

	u, err := url.Parse(v)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", model.ErrInvalidAccountID, raw, err)
	}

	host := strings.ToLower(u.Hostname())
	if host != pandaliveHost && !strings.HasSuffix(host, "."+pandaliveHost) {
		return "", fmt.Errorf("%w: 対象外のホスト %q", model.ErrInvalidAccountID, host)
	}

	id := idFromPath(u.Path)
	if id == "" || !accountIDPattern.MatchString(id) {
		return "", fmt.Errorf("%w: パスからIDを取り出せません %q", model.ErrInvalidAccountID, raw)
	}
	return id, nil
}

// reservedSegments はID単体のパスとして解釈しないサイトのパス。
var reservedSegments = map[string]bool{
	"play":    true,
	"channel": true,
	"live":    true,
}

// idFromPath は "/play/<id>", "/live/play/<id>", "/channel/<id>", "/<id>" からIDを返す。
func idFromPath(p string) string {
	segs := strings.FieldsFunc(p, func(r rune) bool { return r == '/' })

	switch {
	case len(segs) == 1 && !reservedSegments[segs[0]]:
		return segs[0]
	case len(segs) == 2 && (segs[0] == "play" || segs[0] == "channel"):
		return segs[1]
	case len(segs) == 3 && segs[0] == "live" && segs[1] == "play":
		return segs[2]
	}
	return ""
}
