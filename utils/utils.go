package utils

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"math/rand"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

func init() {
	rand.Seed(time.Now().UnixNano())
}

var nodeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidNodeID reports whether id can be used as a node id.
func ValidNodeID(id string) bool {
	return nodeIDPattern.MatchString(id)
}

// FormatBytes renders a byte count with a binary unit, e.g. "1.50 KB".
func FormatBytes(n int64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	v := float64(n)
	for _, unit := range units[:len(units)-1] {
		if v < 1024 && v > -1024 {
			return fmt.Sprintf("%.2f %s", v, unit)
		}
		v /= 1024
	}
	return fmt.Sprintf("%.2f %s", v, units[len(units)-1])
}

// ReadFromJSON decodes the JSON file at filepath into v.
func ReadFromJSON(v interface{}, filepath string) error {
	data, err := ioutil.ReadFile(filepath)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.Wrapf(json.Unmarshal(data, v), "invalid config file %v", filepath)
}

// PrintUsage prints the usage of every command, sorted by name.
func PrintUsage(usageMp map[string]string) {
	cmds := make([]string, 0, len(usageMp))
	for cmd := range usageMp {
		cmds = append(cmds, cmd)
	}
	sort.Strings(cmds)
	fmt.Println("Usage:")
	for _, cmd := range cmds {
		fmt.Printf("  %v %v\n", cmd, usageMp[cmd])
	}
}

func Max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Random an integer within the range
func Random(a, b int) int {
	return rand.Intn(b-a+1) + a
}

func RandomFloat(a, b float64) float64 {
	return a + rand.Float64()*(b-a)
}

func RandomTime(a, b time.Duration) time.Duration {
	return time.Duration(rand.Int63n(int64(b-a+1)) + int64(a))
}

func RandomBool(prob float64) bool {
	return rand.Float64() < prob
}

// ParseValue reads a console token as a bool, an integer, a float or,
// failing those, a string. Quotes force a string.
func ParseValue(token string) interface{} {
	if len(token) >= 2 && strings.HasPrefix(token, `"`) && strings.HasSuffix(token, `"`) {
		return token[1 : len(token)-1]
	}
	if b, err := strconv.ParseBool(token); err == nil && token == strconv.FormatBool(b) {
		return b
	}
	if i, err := strconv.ParseInt(token, 10, 64); err == nil {
		return int(i)
	}
	if f, err := strconv.ParseFloat(token, 64); err == nil {
		return f
	}
	return token
}
