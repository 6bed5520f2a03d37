package logging

import (
	"time"

	"go.uber.org/zap"
)

func PrincipalID(v string) zap.Field {
	return zap.String("principal_id", v)
}

// Factor logs a factor kind by name.
func Factor(v interface{ String() string }) zap.Field {
	return zap.String("factor", v.String())
}

func Purpose(v string) zap.Field {
	return zap.String("purpose", v)
}

func DeviceID(v string) zap.Field {
	return zap.String("device_id", v)
}

func Op(v string) zap.Field {
	return zap.String("op", v)
}

func Reason(v string) zap.Field {
	return zap.String("reason", v)
}

func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// Err logs err under "error"; nil errors are skipped.
func Err(err error) zap.Field {
	if err == nil {
		return zap.Skip()
	}
	return zap.Error(err)
}
