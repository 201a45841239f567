package adapter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ParseOdate は、span.odate要素のclass属性 "time_<UNIX秒>" から日時を取得します。
// 返す時刻はUTCです。
func ParseOdate(sel *goquery.Selection) (time.Time, error) {
	class, ok := sel.Attr("class")
	if !ok {
		return time.Time{}, missing("Odate class is not found")
	}

	for _, c := range strings.Fields(class) {
		raw, found := strings.CutPrefix(c, "time_")
		if !found {
			continue
		}
		unix, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("odateのUNIX時刻が不正です (class=%s): %w", c, err)
		}
		return time.Unix(unix, 0).UTC(), nil
	}

	return time.Time{}, missing("Odate time class is not found")
}
