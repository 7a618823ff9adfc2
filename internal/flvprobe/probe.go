// Package flvprobe inspects finished FLV recordings.
package flvprobe

import (
	"os"
	"time"

	"github.com/pkg/errors"
	flv "github.com/yutopp/go-flv"
	flvtag "github.com/yutopp/go-flv/tag"
)

// Info summarizes a recorded FLV file.
type Info struct {
	Duration  time.Duration
	TagCount  int
	VideoTags int
	AudioTags int
}

// Probe decodes the file's header and walks its tags, reporting the last tag
// timestamp as the recording duration. Truncated tails are common when the
// encoder was killed mid-write, so any tag-decode error simply ends the walk;
// only a missing file or an invalid header is a failure.
func Probe(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open recording")
	}
	defer f.Close()

	dec, err := flv.NewDecoder(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decode flv header of %s", path)
	}

	info := &Info{}
	var lastTimestamp uint32

	var tag flvtag.FlvTag
	for {
		if err := dec.Decode(&tag); err != nil {
			break
		}

		info.TagCount++
		if tag.Timestamp > lastTimestamp {
			lastTimestamp = tag.Timestamp
		}
		switch tag.TagType {
		case flvtag.TagTypeVideo:
			info.VideoTags++
		case flvtag.TagTypeAudio:
			info.AudioTags++
		}
		tag.Close()
	}

	info.Duration = time.Duration(lastTimestamp) * time.Millisecond
	return info, nil
}
