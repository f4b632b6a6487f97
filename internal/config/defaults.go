package config

const (
	defaultLogDir               = "~/.local/share/sxvrs/logs"
	defaultStateDir             = "~/.local/share/sxvrs"
	defaultLogRetentionDays     = 30
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultProcessLogMaxMB      = 20
	defaultProcessLogMaxBackups = 5
	defaultProcessLogMaxAgeDays = 14

	defaultMQTTHost              = "127.0.0.1"
	defaultMQTTPort              = 1883
	defaultMQTTKeepalive         = 60
	defaultMQTTClientID          = "sxvrs_daemon"
	defaultMQTTTopicPublish      = "sxvrs/clients/{source_name}"
	defaultMQTTTopicSubscribe    = "sxvrs/daemon/{source_name}"
	defaultMQTTConnectRetry      = 1
	defaultMQTTPublishTimeoutSec = 2

	defaultScratchPath       = "/mnt/ramdisk"
	defaultScratchSizeMB     = 128
	defaultScratchMountCmd   = "mount -t tmpfs -o size={size}m tmpfs {path}"
	defaultScratchUnmountCmd = "umount {path}"
	defaultStaleFrameSeconds = 300

	defaultPollIntervalSeconds = 1
	defaultStopTimeoutSeconds  = 30
	defaultKillGraceSeconds    = 5

	defaultAPIBind = "127.0.0.1:8989"

	defaultRecordAutostart     = true
	defaultWatcherAutostart    = false
	defaultRecordTime          = 600
	defaultStorageMaxSizeGB    = 10.0
	defaultStoragePath         = "storage/{name}"
	defaultFilenameSnapshot    = "{storage_path}/snapshot.jpg"
	defaultFilenameVideo       = "{storage_path}/{datetime:%Y-%m-%d}/{name}_{datetime:%Y%m%d_%H%M%S}.mp4"
	defaultFrameDepth          = 3
	defaultFFmpegBufferFrames  = 16
	defaultFrameSkip           = 5
	defaultThrottleMinMB       = 5
	defaultThrottleMaxMB       = 10
	defaultStartErrorAttempts  = 10
	defaultStartErrorThreshold = 10
	defaultStartErrorSleep     = 600

	defaultCmdFFmpegRead  = `ffmpeg -hide_banner -nostdin -nostats -loglevel error -fflags nobuffer -flags low_delay -fflags +genpts+discardcorrupt -y -i "{stream_url}" -f rawvideo -pix_fmt rgb24 pipe:`
	defaultCmdFFmpegWrite = `ffmpeg -hide_banner -nostdin -nostats -loglevel error -y -f rawvideo -vcodec rawvideo -s {width}x{height} -pix_fmt rgb{pixbytes} -i - -an -vcodec mpeg4 "{filename}"`

	bytesPerMB = 1024 * 1024
	bytesPerGB = 1024 * 1024 * 1024
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir:   defaultLogDir,
			StateDir: defaultStateDir,
		},
		Logging: Logging{
			Format:               defaultLogFormat,
			Level:                defaultLogLevel,
			RetentionDays:        defaultLogRetentionDays,
			ProcessLogMaxMB:      defaultProcessLogMaxMB,
			ProcessLogMaxBackups: defaultProcessLogMaxBackups,
			ProcessLogMaxAgeDays: defaultProcessLogMaxAgeDays,
		},
		MQTT: MQTT{
			Host:                  defaultMQTTHost,
			Port:                  defaultMQTTPort,
			Keepalive:             defaultMQTTKeepalive,
			ClientID:              defaultMQTTClientID,
			TopicPublish:          defaultMQTTTopicPublish,
			TopicSubscribe:        defaultMQTTTopicSubscribe,
			ConnectRetrySeconds:   defaultMQTTConnectRetry,
			PublishTimeoutSeconds: defaultMQTTPublishTimeoutSec,
		},
		Scratch: Scratch{
			Path:              defaultScratchPath,
			SizeMB:            defaultScratchSizeMB,
			MountCmd:          defaultScratchMountCmd,
			UnmountCmd:        defaultScratchUnmountCmd,
			ClearOnStartup:    true,
			StaleFrameSeconds: defaultStaleFrameSeconds,
		},
		Daemon: Daemon{
			PollIntervalSeconds: defaultPollIntervalSeconds,
			StopTimeoutSeconds:  defaultStopTimeoutSeconds,
			KillGraceSeconds:    defaultKillGraceSeconds,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			Backoff:        true,
			Restart:        true,
		},
		Recorder: CameraSettings{
			Autostart:           ptr(defaultRecordAutostart),
			Watcher:             ptr(defaultWatcherAutostart),
			RecordTime:          ptr(defaultRecordTime),
			StorageMaxSizeGB:    ptr(defaultStorageMaxSizeGB),
			StoragePath:         defaultStoragePath,
			FilenameVideo:       defaultFilenameVideo,
			FilenameSnapshot:    defaultFilenameSnapshot,
			CmdFFmpegRead:       defaultCmdFFmpegRead,
			CmdFFmpegWrite:      defaultCmdFFmpegWrite,
			FrameDepth:          ptr(defaultFrameDepth),
			FFmpegBufferFrames:  ptr(defaultFFmpegBufferFrames),
			FrameSkip:           ptr(defaultFrameSkip),
			ThrottleMinMB:       ptr(defaultThrottleMinMB),
			ThrottleMaxMB:       ptr(defaultThrottleMaxMB),
			StartErrorAttempts:  ptr(defaultStartErrorAttempts),
			StartErrorThreshold: ptr(defaultStartErrorThreshold),
			StartErrorSleep:     ptr(defaultStartErrorSleep),
		},
	}
}

func ptr[T any](v T) *T {
	return &v
}
