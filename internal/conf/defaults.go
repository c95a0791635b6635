package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Default values shared with other packages.
const (
	DefaultInputSize      = 96
	DefaultAlertThreshold = 0.70
	DefaultHealthyLabel   = "healthy_leaf"
)

// setDefaultConfig registers default values for every setting.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("model.path", "model/tomato_leaf_disease.tflite")
	viper.SetDefault("model.labelspath", "")
	viper.SetDefault("model.threads", 0)
	viper.SetDefault("model.usexnnpack", false)
	viper.SetDefault("model.inputsize", DefaultInputSize)

	viper.SetDefault("pipeline.alertthreshold", DefaultAlertThreshold)
	viper.SetDefault("pipeline.healthylabel", DefaultHealthyLabel)
	viper.SetDefault("pipeline.scratchdir", "")
	viper.SetDefault("pipeline.workers", 4)
	viper.SetDefault("pipeline.timeout", 2*time.Minute)
	viper.SetDefault("pipeline.poll.enabled", true)
	viper.SetDefault("pipeline.poll.interval", 30*time.Second)
	viper.SetDefault("pipeline.poll.batchsize", 50)

	viper.SetDefault("storage.backend", "local")
	viper.SetDefault("storage.local.root", "data/images")
	viper.SetDefault("storage.s3.region", "us-east-1")
	viper.SetDefault("storage.s3.usepathstyle", false)

	viper.SetDefault("database.type", "sqlite")
	viper.SetDefault("database.sqlite.path", "leafnet.db")
	viper.SetDefault("database.mysql.host", "localhost")
	viper.SetDefault("database.mysql.port", "3306")
	viper.SetDefault("database.mysql.database", "leafnet")
	viper.SetDefault("database.slowquerythreshold", 200*time.Millisecond)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.clientid", "leafnet")
	viper.SetDefault("mqtt.eventtopic", "leafnet/images")
	viper.SetDefault("mqtt.alerttopic", "leafnet/alerts")
	viper.SetDefault("mqtt.qos", 1)
	viper.SetDefault("mqtt.retain", false)

	viper.SetDefault("notification.push.enabled", false)
	viper.SetDefault("notification.push.urls", []string{})
	viper.SetDefault("notification.push.timeout", 10*time.Second)
	viper.SetDefault("notification.push.ratelimit", 30)
	viper.SetDefault("notification.push.burst", 5)

	viper.SetDefault("outbox.enabled", true)
	viper.SetDefault("outbox.queuesize", 1000)
	viper.SetDefault("outbox.maxretries", 5)
	viper.SetDefault("outbox.initialdelay", 2*time.Second)
	viper.SetDefault("outbox.maxdelay", 2*time.Minute)
	viper.SetDefault("outbox.multiplier", 2.0)

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.listen", ":8080")
	viper.SetDefault("webserver.corsorigins", []string{"*"})
	viper.SetDefault("webserver.statscachettl", time.Minute)
	viper.SetDefault("webserver.maxuploadsize", 10<<20)

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.environment", "production")

	viper.SetDefault("logging.default_level", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", "logs/leafnet.log")
	viper.SetDefault("logging.file_output.level", "info")
}
