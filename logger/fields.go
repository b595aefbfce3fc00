package logger

import (
	"time"

	"go.uber.org/zap"
)

func Method(v string) zap.Field { return zap.String("method", v) }

func Path(v string) zap.Field { return zap.String("path", v) }

func Status(v int) zap.Field { return zap.Int("status", v) }

func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

func ClientIP(v string) zap.Field { return zap.String("client_ip", v) }

func RequestID(v string) zap.Field { return zap.String("request_id", v) }

// ExternalID is the GitLab user id
func ExternalID(v string) zap.Field { return zap.String("external_id", v) }

// Reason is the failure kind of an authorization flow
func Reason(v string) zap.Field { return zap.String("reason", v) }

func Endpoint(v string) zap.Field { return zap.String("endpoint", v) }
