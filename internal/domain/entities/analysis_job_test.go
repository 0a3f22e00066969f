package entities

import (
	"errors"
	"testing"
	"time"
)

func TestAnalysisJob_Lifecycle(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	job := NewAnalysisJob("id-1", &LibraryUnit{Name: "libA"})

	if job.Status != JobPending {
		t.Fatalf("new job status = %s, want pending", job.Status)
	}
	if err := job.Succeed(start, "/out/libA.fidb"); err == nil {
		t.Error("Succeed() from pending should fail")
	}
	if err := job.Start(start); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := job.Start(start); err == nil {
		t.Error("Start() twice should fail")
	}
	if err := job.Succeed(start.Add(90*time.Second), "/out/libA.fidb"); err != nil {
		t.Fatalf("Succeed() error = %v", err)
	}
	if !job.Status.IsTerminal() {
		t.Error("succeeded job should be terminal")
	}
	if job.Duration() != 90*time.Second {
		t.Errorf("Duration() = %v, want 90s", job.Duration())
	}
	if err := job.Fail(start, 1, errors.New("late")); err == nil {
		t.Error("Fail() after success should be rejected")
	}
	if job.Status != JobSucceeded || job.OutputPath != "/out/libA.fidb" {
		t.Errorf("job changed after rejected transition: %+v", job)
	}
}

func TestAnalysisJob_FailWithoutRunning(t *testing.T) {
	job := NewAnalysisJob("id-2", &LibraryUnit{Name: "libB"})
	if err := job.Fail(time.Now(), -1, errors.New("cancelled")); err != nil {
		t.Fatalf("Fail() from pending error = %v", err)
	}
	if job.Status != JobFailed || job.ExitCode != -1 {
		t.Errorf("job = %+v, want failed with exit -1", job)
	}
	if job.Duration() != 0 {
		t.Errorf("Duration() of a job that never started = %v, want 0", job.Duration())
	}
	if err := job.Start(time.Now()); err == nil {
		t.Error("Start() after failure should be rejected")
	}
}

func TestProcessorProfile(t *testing.T) {
	p := DefaultProcessorProfile()
	if p.LanguageID() != "SuperH4:LE:32:default" {
		t.Errorf("LanguageID() = %s", p.LanguageID())
	}
	if p.BaseAddressHex() != "0x8c010000" {
		t.Errorf("BaseAddressHex() = %s", p.BaseAddressHex())
	}
	if !p.LittleEndian() {
		t.Error("default profile should be little endian")
	}

	tests := []struct {
		name    string
		mutate  func(*ProcessorProfile)
		field   string
		wantErr bool
	}{
		{name: "default", mutate: func(*ProcessorProfile) {}},
		{name: "big endian", mutate: func(p *ProcessorProfile) { p.Endianness = "be" }},
		{name: "no architecture", mutate: func(p *ProcessorProfile) { p.Architecture = "" }, field: "processor.architecture", wantErr: true},
		{name: "bad endianness", mutate: func(p *ProcessorProfile) { p.Endianness = "middle" }, field: "processor.endianness", wantErr: true},
		{name: "bad bits", mutate: func(p *ProcessorProfile) { p.Bits = 24 }, field: "processor.bits", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultProcessorProfile()
			tt.mutate(&p)
			err := p.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			var ce *ConfigurationError
			if tt.wantErr && (!errors.As(err, &ce) || ce.Field != tt.field) {
				t.Errorf("Validate() error = %v, want field %s", err, tt.field)
			}
		})
	}
}

func TestConvention_Recognizes(t *testing.T) {
	c := DefaultConvention()
	c.Patterns = []string{"lib*", "shinobi"}

	tests := []struct {
		name string
		want bool
	}{
		{"libA", true},
		{"LIBSH4", true},
		{"Shinobi", true},
		{"sample", false},
		{"Demo", false},
		{"tools", false},
	}
	for _, tt := range tests {
		if got := c.Recognizes(tt.name); got != tt.want {
			t.Errorf("Recognizes(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}

	if !c.HasExtension("STRLEN.OBJ") || c.HasExtension("readme.txt") {
		t.Error("HasExtension() should be case-insensitive and reject other extensions")
	}
	if !c.IsIgnoredFile("COPYING.LIB") {
		t.Error("IsIgnoredFile() should match case-insensitively")
	}
}

func TestConvention_Validate(t *testing.T) {
	c := DefaultConvention()
	if err := c.Validate(); err != nil {
		t.Fatalf("default convention invalid: %v", err)
	}

	c.Patterns = []string{"[lib"}
	if !IsConfigurationError(c.Validate()) {
		t.Error("malformed pattern should be a configuration error")
	}

	c = DefaultConvention()
	c.Extensions = nil
	if !IsConfigurationError(c.Validate()) {
		t.Error("empty extension list should be a configuration error")
	}
}
