package bagit

import (
	"bufio"
	"io"
	"io/ioutil"
	"regexp"
	"strings"
)

var (
	versionLine  = regexp.MustCompile(`^\s*BagIt-Version: [0-9]+\.[0-9]+\s*$`)
	encodingLine = regexp.MustCompile(`^\s*Tag-File-Character-Encoding: \w+`)
)

// bagit.txt is tiny. Anything bigger is not a bag declaration.
const maxBagitTxt = 4096

// CheckDeclaration verifies the content of the bagit.txt file in r. It must
// have exactly two lines, the first giving the BagIt version and the second
// the tag file encoding.
func CheckDeclaration(r io.Reader) error {
	data, err := ioutil.ReadAll(io.LimitReader(r, maxBagitTxt+1))
	if err != nil {
		return err
	}
	if len(data) > maxBagitTxt {
		return &StructureError{File: "bagit.txt", Msg: "file is too large"}
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(lines) != 2 {
		return &StructureError{File: "bagit.txt", Msg: "expected exactly two lines"}
	}
	if !versionLine.MatchString(strings.TrimSuffix(lines[0], "\r")) {
		return &StructureError{Msg: "Invalid 'BagIt-Version' definition in 1st line in bagit.txt"}
	}
	if !encodingLine.MatchString(lines[1]) {
		return &StructureError{Msg: "Invalid 'Tag-File-Character-Encoding' definition in 2nd line in bagit.txt"}
	}
	return nil
}

// ParseTags reads a tag file such as bag-info.txt. Each tag is on a line of
// the form "name: value". A line beginning with white space continues the
// value of the previous tag. Other lines are skipped. If a tag occurs more
// than once, the last value wins.
func ParseTags(r io.Reader) (map[string]string, error) {
	tags := make(map[string]string)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 4096), maxLine)
	var last string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			if last != "" {
				tags[last] += " " + strings.TrimSpace(line)
			}
			continue
		}
		i := strings.Index(line, ":")
		if i == -1 {
			continue
		}
		last = strings.TrimSpace(line[:i])
		tags[last] = strings.TrimSpace(line[i+1:])
	}
	return tags, scanner.Err()
}

// Tags returns the tags from the bagit.txt and bag-info.txt files of the
// bag. A missing bag-info.txt is not an error.
func (l *Layout) Tags() (map[string]string, error) {
	result := make(map[string]string)
	for _, name := range []string{"bagit.txt", "bag-info.txt"} {
		if !l.Exists(name) {
			continue
		}
		rc, err := l.Open(name)
		if err != nil {
			return nil, err
		}
		tags, err := ParseTags(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		for k, v := range tags {
			result[k] = v
		}
	}
	return result, nil
}
