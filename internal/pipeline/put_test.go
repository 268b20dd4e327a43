// Copyright 2021 Nick White.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package pipeline

import (
	"context"
	"os"
	"testing"
)

func Test_CheckImages(t *testing.T) {
	cases := []struct {
		dir     string
		wantErr bool
	}{
		{"testdata/good", false},
		{"testdata/bad", true},
		{"testdata/notreadable", true},
	}

	for _, c := range cases {
		t.Run(c.dir, func(t *testing.T) {
			if c.dir == "testdata/notreadable" {
				err := os.Chmod("testdata/notreadable/1.png", 0000)
				if err != nil {
					t.Fatalf("Error preparing test by setting file to be unreadable: %v", err)
				}
				defer os.Chmod("testdata/notreadable/1.png", 0644)
			}

			err := CheckImages(context.Background(), c.dir)
			if c.wantErr && err == nil {
				t.Fatalf("Expected an error, got none")
			}
			if !c.wantErr && err != nil {
				t.Fatalf("Expected no error, got error %v", err)
			}
		})
	}
}
