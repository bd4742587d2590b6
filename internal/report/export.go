package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/25smoking/ovalprobe/internal/oval"
	"github.com/25smoking/ovalprobe/internal/probe"
	"github.com/25smoking/ovalprobe/internal/session"
	"github.com/25smoking/ovalprobe/internal/sexp"
	"github.com/25smoking/ovalprobe/internal/sysinfo"
)

// Document 是系统特征快照的导出形式
type Document struct {
	SessionID string        `json:"session_id"`
	Generated time.Time     `json:"generated"`
	System    *sysinfo.Info `json:"system_info,omitempty"`
	Objects   []Object      `json:"collected_objects"`
}

type Object struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Comment  string    `json:"comment,omitempty"`
	Flag     string    `json:"flag"`
	Items    []Item    `json:"items,omitempty"`
	Messages []Message `json:"messages,omitempty"`
}

type Item struct {
	Name   string  `json:"name"`
	Status string  `json:"status"`
	Fields []Field `json:"fields"`
}

type Field struct {
	Name    string `json:"name"`
	Value   string `json:"value,omitempty"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

type Message struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

func Build(sc *session.SystemCharacteristics) *Document {
	doc := &Document{SessionID: sc.SessionID, Generated: sc.Generated, System: sc.Info}
	for _, r := range sc.Results {
		o := Object{
			ID:      r.ObjectID,
			Type:    string(r.Subtype),
			Comment: r.Comment,
			Flag:    r.Cobj.Flag().String(),
		}
		for _, it := range r.Cobj.Items() {
			o.Items = append(o.Items, buildItem(it))
		}
		for _, m := range r.Cobj.Messages() {
			o.Messages = append(o.Messages, Message{Level: m.Level.String(), Text: m.Text})
		}
		doc.Objects = append(doc.Objects, o)
	}
	return doc
}

func buildItem(it *probe.Item) Item {
	out := Item{Name: it.Name(), Status: it.Flag().String()}
	for _, f := range it.Fields() {
		ef := Field{Name: f.Name, Value: valueText(f.Value)}
		if st := f.Attr(probe.AttrStatus); st != nil {
			if n, ok := st.Int64(); ok {
				ef.Status = oval.Flag(n).String()
			}
		}
		if msg := f.Attr(probe.AttrMessage); msg != nil {
			ef.Message = msg.Text()
		}
		out.Fields = append(out.Fields, ef)
	}
	return out
}

func valueText(v *sexp.Value) string {
	if v == nil {
		return ""
	}
	if v.IsList() {
		return v.String()
	}
	return v.Text()
}

// Save 把快照导出到 dir，format 为 json、csv、html 或 all，返回写入的文件
func Save(sc *session.SystemCharacteristics, format, dir string) ([]string, error) {
	timestamp := time.Now().Format("20060102_150405")
	base := filepath.Join(dir, fmt.Sprintf("ovalprobe_syschar_%s", timestamp))
	doc := Build(sc)

	var formats []string
	switch format {
	case "json", "csv", "html":
		formats = []string{format}
	case "all":
		formats = []string{"json", "csv", "html"}
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}

	var written []string
	for _, f := range formats {
		name := base + "." + f
		if err := saveFile(name, doc, f); err != nil {
			return written, err
		}
		written = append(written, name)
	}
	return written, nil
}

func saveFile(name string, doc *Document, format string) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()

	switch format {
	case "json":
		return WriteJSON(f, doc)
	case "html":
		return WriteHTML(f, doc)
	}
	// 写入 BOM 以防止 Excel 打开中文乱码
	if _, err := f.Write([]byte("\xEF\xBB\xBF")); err != nil {
		return err
	}
	return WriteCSV(f, doc)
}

func WriteJSON(w io.Writer, doc *Document) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(doc)
}

var csvHeader = []string{"ObjectID", "Type", "Flag", "Item", "ItemName", "ItemStatus", "Field", "Value", "FieldStatus", "Message"}

// WriteCSV 每个条目字段写一行，没有条目的对象写一行只带对象列的记录
func WriteCSV(w io.Writer, doc *Document) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, o := range doc.Objects {
		if len(o.Items) == 0 {
			msg := ""
			if len(o.Messages) > 0 {
				msg = o.Messages[0].Text
			}
			if err := cw.Write([]string{o.ID, o.Type, o.Flag, "", "", "", "", "", "", msg}); err != nil {
				return err
			}
			continue
		}
		for i, it := range o.Items {
			for _, f := range it.Fields {
				row := []string{o.ID, o.Type, o.Flag, strconv.Itoa(i), it.Name, it.Status, f.Name, f.Value, f.Status, f.Message}
				if err := cw.Write(row); err != nil {
					return err
				}
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
