package async

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buzzsnip/buzzsnip/errors"
)

func TestJobRequestValidate(t *testing.T) {
	tests := []struct {
		name      string
		req       JobRequest
		wantField string
	}{
		{"automated ok", JobRequest{Kind: KindAutomated, Params: Params{PersonaID: "p", Theme: "tech", Duration: 30}}, ""},
		{"automated missing theme", JobRequest{Kind: KindAutomated, Params: Params{PersonaID: "p", Duration: 30}}, "theme"},
		{"automated missing duration", JobRequest{Kind: KindAutomated, Params: Params{PersonaID: "p", Theme: "tech"}}, "duration"},
		{"audio ok", JobRequest{Kind: KindAudio, Params: Params{Script: "s", VoiceType: "v", PersonaID: "p"}}, ""},
		{"audio missing voice", JobRequest{Kind: KindAudio, Params: Params{Script: "s", PersonaID: "p"}}, "voice_type"},
		{"audio blank script", JobRequest{Kind: KindAudio, Params: Params{Script: "  ", VoiceType: "v", PersonaID: "p"}}, "script"},
		{"face ok", JobRequest{Kind: KindFace, Params: Params{PersonaID: "p"}}, ""},
		{"face missing persona", JobRequest{Kind: KindFace}, "persona_id"},
		{"video ok", JobRequest{Kind: KindVideo, Params: Params{AudioURL: "a", FaceURL: "f"}}, ""},
		{"video missing face", JobRequest{Kind: KindVideo, Params: Params{AudioURL: "a"}}, "face_url"},
		{"unknown kind", JobRequest{Kind: "thumbnail"}, "kind"},
		{"negative duration", JobRequest{Kind: KindFace, Params: Params{PersonaID: "p", Duration: -1}}, "duration"},
		{"over max duration", JobRequest{Kind: KindAutomated, Params: Params{PersonaID: "p", Theme: "t", Duration: 61}}, "duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate(60)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsInvalidRequestError(err))
			assert.Equal(t, tt.wantField, errors.FieldOf(err))
		})
	}
}

func TestJobRequestValidateWithoutLimit(t *testing.T) {
	req := JobRequest{Kind: KindAutomated, Params: Params{PersonaID: "p", Theme: "t", Duration: 3600}}
	assert.NoError(t, req.Validate(0))
}

func TestJobRequestDefaults(t *testing.T) {
	req := JobRequest{Kind: KindAutomated, Params: Params{PersonaID: "p", Theme: "t", Duration: 30}}.withDefaults()
	assert.Equal(t, []string{DefaultPlatform}, req.Params.Platforms)
	require.NotNil(t, req.Params.AutoUpload)
	assert.True(t, *req.Params.AutoUpload)

	off := false
	req = JobRequest{Kind: KindAutomated, Params: Params{Platforms: []string{"tiktok"}, AutoUpload: &off}}.withDefaults()
	assert.Equal(t, []string{"tiktok"}, req.Params.Platforms)
	assert.False(t, *req.Params.AutoUpload)

	req = JobRequest{Kind: KindFace}.withDefaults()
	assert.Nil(t, req.Params.Platforms, "only automated jobs get publishing defaults")
	assert.Nil(t, req.Params.AutoUpload)
}
