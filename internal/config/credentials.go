package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/ypatankar/datalake/internal/blob"
)

// credentialSections are searched in order for each key in an INI file.
// Keys outside any section land in viper's "default" section.
var credentialSections = []string{"aws", "gcp", "default"}

// LoadCredentials reads a dl.cfg-style INI file and overlays environment
// variables of the same name, which take precedence:
//
//	[AWS]
//	AWS_ACCESS_KEY_ID=...
//	AWS_SECRET_ACCESS_KEY=...
//
// Recognised keys: AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY,
// AWS_SESSION_TOKEN, AWS_REGION (or AWS_DEFAULT_REGION), AWS_ENDPOINT_URL,
// AWS_S3_FORCE_PATH_STYLE and GOOGLE_APPLICATION_CREDENTIALS. An empty path
// reads the environment only.
func LoadCredentials(path string) (blob.Credentials, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("ini")
		if err := v.ReadInConfig(); err != nil {
			return blob.Credentials{}, errors.Wrapf(err, "read credentials %s", path)
		}
	}

	get := func(names ...string) string {
		for _, name := range names {
			if s := strings.TrimSpace(os.Getenv(name)); s != "" {
				return s
			}
		}
		for _, name := range names {
			for _, sec := range credentialSections {
				if s := strings.TrimSpace(v.GetString(sec + "." + strings.ToLower(name))); s != "" {
					return s
				}
			}
		}
		return ""
	}

	creds := blob.Credentials{
		AccessKeyID:        get("AWS_ACCESS_KEY_ID"),
		SecretAccessKey:    get("AWS_SECRET_ACCESS_KEY"),
		SessionToken:       get("AWS_SESSION_TOKEN"),
		Region:             get("AWS_REGION", "AWS_DEFAULT_REGION"),
		Endpoint:           get("AWS_ENDPOINT_URL"),
		GCSCredentialsFile: get("GOOGLE_APPLICATION_CREDENTIALS"),
	}
	if s := get("AWS_S3_FORCE_PATH_STYLE"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return blob.Credentials{}, errors.Wrapf(err, "AWS_S3_FORCE_PATH_STYLE=%q", s)
		}
		creds.ForcePathStyle = b
	}
	if (creds.AccessKeyID == "") != (creds.SecretAccessKey == "") {
		return blob.Credentials{}, errors.New("credentials: AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together")
	}
	return creds, nil
}
