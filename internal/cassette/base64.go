// Copyright 2025 The vcrproxy Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cassette

import "encoding/base64"

func encodeBase64(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

func decodeBase64(text string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(text)
}
