package ids

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// All generated ids are name-based (SHA1) uuids so a given seed always yields
// the same catalog.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://charttopper.fm/ids"))

func derive(prefix string, parts ...string) string {
	return prefix + uuid.NewSHA1(namespace, []byte(prefix+"/"+strings.Join(parts, "/"))).String()
}

func NPCTrack(seed int64, week, n int) string {
	return derive("npct_", strconv.FormatInt(seed, 10), strconv.Itoa(week), strconv.Itoa(n))
}

func NPCProject(seed int64, week, n int) string {
	return derive("npcp_", strconv.FormatInt(seed, 10), strconv.Itoa(week), strconv.Itoa(n))
}

func Notification(week int, category string, parts ...string) string {
	return derive("ntf_", append([]string{strconv.Itoa(week), category}, parts...)...)
}

func Post(week int, kind string, parts ...string) string {
	return derive("post_", append([]string{strconv.Itoa(week), kind}, parts...)...)
}

func IsNPC(id string) bool {
	return strings.HasPrefix(id, "npct_") || strings.HasPrefix(id, "npcp_")
}
