package ratchet

import "time"

func nowUTC() int64 { return time.Now().UTC().Unix() }
