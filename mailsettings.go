// Copyright 2024 Nick White.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package fpsegment

// This file contains mail account constants. They are not read by the
// pipeline: email notifications use the settings that
// pipeline.GetMailSettings reads from ~/.config/fpsegment/mailsettings.
const (
	MailServer = ""
	MailPort   = 587
	MailUser   = ""
	MailPass   = ""
	MailFrom   = ""
	MailTo     = ""
)
