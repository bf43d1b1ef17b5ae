package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix namespaces snapcam's own settings in the environment, e.g. SNAPCAM_FFMPEG_PATH.
	EnvPrefix = "SNAPCAM"

	cameraPrefix = "CAMERA_"
)

// Settings is the decoded configuration file plus environment overrides.
type Settings struct {
	FFmpegPath    string        `mapstructure:"ffmpeg_path"`
	RTSPTransport string        `mapstructure:"rtsp_transport"`
	RTSPTimeout   time.Duration `mapstructure:"rtsp_timeout"`
	HTTPTimeout   time.Duration `mapstructure:"http_timeout"`
	MJPEGTimeout  time.Duration `mapstructure:"mjpeg_timeout"`
	TempDir       string        `mapstructure:"temp_dir"`
	EnvFiles      []string      `mapstructure:"env_files"`
	Concurrency   int           `mapstructure:"concurrency"`

	Serve ServeSettings `mapstructure:"serve"`
	MQTT  MQTTSettings  `mapstructure:"mqtt"`
	ONVIF ONVIFSettings `mapstructure:"onvif"`
}

type ServeSettings struct {
	Addr string `mapstructure:"addr"`
	// Interval between scheduled captures of every camera. Zero disables them.
	Interval time.Duration `mapstructure:"interval"`
}

type MQTTSettings struct {
	Broker       string `mapstructure:"broker"`
	ClientID     string `mapstructure:"client_id"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	TopicPrefix  string `mapstructure:"topic_prefix"`
	QoS          byte   `mapstructure:"qos"`
	IncludeImage bool   `mapstructure:"include_image"`
}

type ONVIFSettings struct {
	Lookup bool `mapstructure:"lookup"`
}

// SetDefaults registers the default value of every setting on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("ffmpeg_path", "ffmpeg")
	v.SetDefault("rtsp_transport", "tcp")
	v.SetDefault("rtsp_timeout", 15*time.Second)
	v.SetDefault("http_timeout", 10*time.Second)
	v.SetDefault("mjpeg_timeout", 15*time.Second)
	v.SetDefault("temp_dir", "")
	v.SetDefault("env_files", []string{".env"})
	v.SetDefault("concurrency", 3)

	v.SetDefault("serve.addr", ":9100")
	v.SetDefault("serve.interval", time.Duration(0))

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "snapcam")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic_prefix", "snapcam")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.include_image", false)

	v.SetDefault("onvif.lookup", false)
}

// InitConfig reads in config file and ENV variables if set.
func InitConfig(cfgFile string) {
	SetDefaults(viper.GetViper())

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".snapcam" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".snapcam")
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// A missing config file is fine; defaults and the environment still apply.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			fmt.Printf("Error reading config file %s: %v\n", cfgFile, err)
			os.Exit(1)
		}
	}
}

// Load decodes v into Settings.
func Load(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return s, errors.Wrap(err, "decoding configuration")
	}
	// Lowering the limit is allowed; the ceiling is fixed at 3.
	if s.Concurrency < 1 || s.Concurrency > 3 {
		s.Concurrency = 3
	}
	return s, nil
}

// CameraNamespace collects the raw CAMERA_* keys camera discovery works on.
// Later sources win: env files in order, then the cameras section of the
// config file, then the process environment.
func CameraNamespace(v *viper.Viper, environ []string) (map[string]string, error) {
	raw := make(map[string]string)

	files := existing(v.GetStringSlice("env_files"))
	if len(files) > 0 {
		fromFiles, err := godotenv.Read(files...)
		if err != nil {
			return nil, errors.Wrapf(err, "reading env files %v", files)
		}
		mergeCameraKeys(raw, fromFiles)
	}

	mergeCameraKeys(raw, flattenCameras(v.GetStringMap("cameras")))

	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, val, ok := strings.Cut(kv, "="); ok {
			env[k] = val
		}
	}
	mergeCameraKeys(raw, env)

	return raw, nil
}

func existing(paths []string) []string {
	var out []string
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out
}

func mergeCameraKeys(dst, src map[string]string) {
	for k, v := range src {
		if strings.HasPrefix(k, cameraPrefix) {
			dst[k] = v
		}
	}
}

// flattenCameras turns
//
//	cameras:
//	  kitchen:
//	    ip: 10.0.0.5
//	    type: mjpeg
//
// into CAMERA_KITCHEN_IP and CAMERA_KITCHEN_TYPE.
func flattenCameras(section map[string]interface{}) map[string]string {
	out := make(map[string]string)
	names := make([]string, 0, len(section))
	for name := range section {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fields, ok := section[name].(map[string]interface{})
		if !ok {
			continue
		}
		for field, value := range fields {
			key := cameraPrefix + strings.ToUpper(name) + "_" + strings.ToUpper(field)
			out[key] = fmt.Sprint(value)
		}
	}
	return out
}
