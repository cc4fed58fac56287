package bytes

import (
	"reflect"
	"testing"
)

func TestConvertToUtf16(t *testing.T) {
	type args struct {
		str string
	}
	tests := []struct {
		name string
		args args
		want []byte
	}{
		{
			name: "empty string",
			args: args{
				str: "",
			},
			want: []byte{},
		},
		{
			name: "arbitrary text",
			args: args{
				str: "Patch Gateway",
			},
			want: []byte{80, 0, 97, 0, 116, 0, 99, 0, 104, 0, 32, 0, 71, 0, 97, 0, 116, 0, 101, 0, 119, 0, 97, 0, 121, 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConvertToUtf16(tt.args.str); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ConvertToUtf16() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConvertFromUtf16(t *testing.T) {
	original := "Gateway notice text"
	if got := ConvertFromUtf16(ConvertToUtf16(original)); got != original {
		t.Errorf("ConvertFromUtf16() = %q, want %q", got, original)
	}
}
