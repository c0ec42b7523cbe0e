package document

import (
	"encoding/binary"
	"sort"

	"github.com/orirocks/orirocks/core/value"
)

// Document-level canonical tag bytes. Frozen together with the value tags:
// changing any of them invalidates every build cache in the wild.
const (
	TagImport     = 0x10
	TagFunction   = 0x11
	TagBuild      = 0x12
	TagDeploy     = 0x13
	TagActionStep = 0x20
	TagInvokeStep = 0x21
)

func appendCount(buf []byte, n int) []byte {
	return binary.LittleEndian.AppendUint64(buf, uint64(n))
}

func appendParams(buf []byte, params map[string]value.Value) []byte {
	buf = appendCount(buf, len(params))
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf = value.AppendString(buf, k)
		buf = params[k].AppendCanonical(buf)
	}
	return buf
}

func appendType(buf []byte, t value.Type) []byte {
	buf = append(buf, byte(t.Kind))
	if t.Inner != nil {
		buf = appendType(buf, *t.Inner)
	}
	return buf
}

func (s Step) appendCanonical(buf []byte) []byte {
	switch s.Kind {
	case StepAction:
		buf = append(buf, TagActionStep)
		buf = value.AppendString(buf, s.Action)
	case StepInvoke:
		buf = append(buf, TagInvokeStep)
		buf = value.AppendString(buf, s.InvokeFn)
	}
	return appendParams(buf, s.Parameters)
}

func appendSteps(buf []byte, steps []Step) []byte {
	buf = appendCount(buf, len(steps))
	for _, s := range steps {
		buf = s.appendCanonical(buf)
	}
	return buf
}

// AppendCanonical appends the canonical encoding of an import entry.
func (im Import) AppendCanonical(buf []byte) []byte {
	buf = append(buf, TagImport)
	buf = value.AppendString(buf, im.Require)
	return value.AppendString(buf, im.Version)
}

// Digest returns the 64-bit content digest of the import.
func (im Import) Digest() uint64 {
	return value.Digest64(im.AppendCanonical(nil))
}

// AppendCanonical appends the canonical encoding of a function document.
// The parameter spec is emitted in key-sorted order.
func (f Function) AppendCanonical(buf []byte) []byte {
	buf = append(buf, TagFunction)
	buf = value.AppendString(buf, f.Name)
	buf = appendCount(buf, len(f.ParameterSpec))
	names := make([]string, 0, len(f.ParameterSpec))
	for k := range f.ParameterSpec {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, name := range names {
		p := f.ParameterSpec[name]
		buf = value.AppendString(buf, name)
		buf = appendType(buf, p.Type)
		if p.Default != nil {
			buf = append(buf, 1)
			buf = p.Default.AppendCanonical(buf)
		} else {
			buf = append(buf, 0)
		}
	}
	return appendSteps(buf, f.Steps)
}

// Digest returns the 64-bit content digest of the function.
func (f Function) Digest() uint64 {
	return value.Digest64(f.AppendCanonical(nil))
}

// AppendCanonical appends the canonical encoding of a build document.
func (b Build) AppendCanonical(buf []byte) []byte {
	buf = append(buf, TagBuild)
	buf = value.AppendString(buf, b.Name)
	if b.From != "" {
		buf = append(buf, 1)
		buf = value.AppendString(buf, b.From)
	} else {
		buf = append(buf, 0)
	}
	buf = appendCount(buf, len(b.Depends))
	for _, d := range b.Depends {
		buf = value.AppendString(buf, d)
	}
	buf = appendCount(buf, len(b.Envs))
	for _, e := range b.Envs {
		buf = value.AppendString(buf, e.Name)
		buf = appendParams(buf, e.Parameters)
		buf = appendSteps(buf, e.Steps)
	}
	return buf
}

// Digest returns the 64-bit content digest of the build.
func (b Build) Digest() uint64 {
	return value.Digest64(b.AppendCanonical(nil))
}

// AppendCanonical appends the canonical encoding of a deploy document.
func (d Deploy) AppendCanonical(buf []byte) []byte {
	buf = append(buf, TagDeploy)
	buf = value.AppendString(buf, d.Name)
	buf = value.AppendString(buf, d.DeployTo)
	buf = value.AppendString(buf, d.Artifact)
	return appendParams(buf, d.Parameters)
}

// Digest returns the 64-bit content digest of the deploy.
func (d Deploy) Digest() uint64 {
	return value.Digest64(d.AppendCanonical(nil))
}
