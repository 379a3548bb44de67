package async

import (
	"strings"

	"github.com/buzzsnip/buzzsnip/errors"
	"github.com/buzzsnip/buzzsnip/internal/util"
)

// DefaultPlatform is where automated jobs publish when the request names none.
const DefaultPlatform = "youtube"

// JobRequest asks the manager to admit a new job.
type JobRequest struct {
	Kind       Kind
	Params     Params
	ScheduleID string
}

// requiredFields lists the parameters each kind cannot do without.
var requiredFields = map[Kind][]string{
	KindAutomated: {"persona_id", "theme", "duration"},
	KindAudio:     {"script", "voice_type", "persona_id"},
	KindFace:      {"persona_id"},
	KindVideo:     {"audio_url", "face_url"},
}

func (p Params) has(field string) bool {
	switch field {
	case "persona_id":
		return strings.TrimSpace(p.PersonaID) != ""
	case "theme":
		return strings.TrimSpace(p.Theme) != ""
	case "duration":
		return p.Duration != 0
	case "script":
		return strings.TrimSpace(p.Script) != ""
	case "voice_type":
		return strings.TrimSpace(p.VoiceType) != ""
	case "audio_url":
		return strings.TrimSpace(p.AudioURL) != ""
	case "face_url":
		return strings.TrimSpace(p.FaceURL) != ""
	}
	return false
}

// Validate checks the request for its kind's required fields and the duration
// limit. maxDuration <= 0 disables the limit.
func (r JobRequest) Validate(maxDuration int) error {
	if !IsValidKind(string(r.Kind)) {
		return errors.NewFieldError("kind", "unknown job kind %q", string(r.Kind))
	}

	for _, field := range requiredFields[r.Kind] {
		if !r.Params.has(field) {
			return errors.MissingField(field)
		}
	}

	if r.Params.Duration < 0 {
		return errors.NewFieldError("duration", "must be positive, got %d", r.Params.Duration)
	}
	if maxDuration > 0 && r.Params.Duration > maxDuration {
		return errors.NewFieldError("duration", "%d seconds exceeds the %d second maximum", r.Params.Duration, maxDuration)
	}
	return nil
}

// withDefaults fills optional automated parameters the way the generation
// service expects them.
func (r JobRequest) withDefaults() JobRequest {
	if r.Kind != KindAutomated {
		return r
	}
	if len(r.Params.Platforms) == 0 {
		r.Params.Platforms = []string{DefaultPlatform}
	}
	if r.Params.AutoUpload == nil {
		r.Params.AutoUpload = util.Ptr(true)
	}
	return r
}
