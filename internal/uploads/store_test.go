package uploads

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"NotifyAdmin/internal/csvparser"
	"NotifyAdmin/internal/models"
)

// fakeS3 is an in-memory bucket.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	meta    map[string]map[string]string
	copies  []*s3.CopyObjectInput

	getDeadline bool
}

// ctxBody fails reads once the request context is done.
type ctxBody struct {
	ctx context.Context
	r   io.Reader
}

func (b ctxBody) Read(p []byte) (int, error) {
	if err := b.ctx.Err(); err != nil {
		return 0, err
	}
	return b.r.Read(p)
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, meta: map[string]map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Key] = data
	f.meta[*in.Key] = in.Metadata
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, f.getDeadline = ctx.Deadline()
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("no such key")}
	}
	body := ctxBody{ctx: ctx, r: bytes.NewReader(data)}
	return &s3.GetObjectOutput{Body: io.NopCloser(body), Metadata: f.meta[*in.Key]}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[*in.Key]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{Metadata: f.meta[*in.Key]}, nil
}

func (f *fakeS3) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copies = append(f.copies, in)
	f.meta[*in.Key] = in.Metadata
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

func stores(t *testing.T) map[string]Store {
	local, err := NewLocalStore(t.TempDir(), DefaultMetadataBudget, zap.NewNop())
	require.NoError(t, err)
	return map[string]Store{
		"s3":    newS3Store(newFakeS3(), "uploads", DefaultMetadataBudget, 0, zap.NewNop()),
		"local": local,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			meta := models.UploadMetadata{
				ServiceID:         "svc",
				TemplateID:        "tmpl",
				TemplateVersion:   2,
				NotificationCount: 1,
				Valid:             true,
				OriginalFileName:  "üöäéñ.csv",
			}
			require.NoError(t, store.Put(ctx, "svc", "up-1", "email address\r\na@b.ca", meta))

			csv, got, err := ReadAll(ctx, store, "svc", "up-1")
			require.NoError(t, err)
			assert.Equal(t, "email address\r\na@b.ca", csv)
			assert.Equal(t, "?????.csv", got.OriginalFileName)
			assert.Equal(t, 2, got.TemplateVersion)
			assert.True(t, got.Valid)

			sender := "reply-to-1"
			require.NoError(t, store.SetMetadata(ctx, "svc", "up-1", Patch{SenderID: &sender}))
			got, err = store.Metadata(ctx, "svc", "up-1")
			require.NoError(t, err)
			assert.Equal(t, "reply-to-1", got.SenderID)
			assert.Equal(t, 1, got.NotificationCount)

			require.NoError(t, store.Health(ctx))
		})
	}
}

func TestStoreNotFound(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, _, err := store.Get(ctx, "svc", "missing")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = store.Metadata(ctx, "svc", "missing")
			assert.ErrorIs(t, err, ErrNotFound)
			empty := ""
			assert.ErrorIs(t, store.SetMetadata(ctx, "svc", "missing", Patch{SenderID: &empty}), ErrNotFound)
		})
	}
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	local, err := NewLocalStore(t.TempDir(), DefaultMetadataBudget, zap.NewNop())
	require.NoError(t, err)
	_, err = local.Metadata(context.Background(), "svc", "../../etc/passwd")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3SetMetadataReplacesInPlace(t *testing.T) {
	fake := newFakeS3()
	store := newS3Store(fake, "uploads", DefaultMetadataBudget, 0, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "svc", "up-1", "phone number", models.UploadMetadata{ServiceID: "svc"}))

	valid := true
	require.NoError(t, store.SetMetadata(ctx, "svc", "up-1", Patch{Valid: &valid}))

	require.Len(t, fake.copies, 1)
	in := fake.copies[0]
	assert.Equal(t, types.MetadataDirectiveReplace, in.MetadataDirective)
	assert.Equal(t, "uploads/service-svc-notify/up-1.csv", *in.CopySource)
	assert.Equal(t, "True", in.Metadata[KeyValid])
}

func TestS3GetReadsBodyWithinTimeout(t *testing.T) {
	fake := newFakeS3()
	store := newS3Store(fake, "uploads", DefaultMetadataBudget, time.Minute, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "svc", "up-1", "phone number\r\n+16502532222", models.UploadMetadata{ServiceID: "svc"}))

	body, meta, err := store.Get(ctx, "svc", "up-1")
	require.NoError(t, err)
	defer body.Close()
	assert.True(t, fake.getDeadline)
	assert.Equal(t, "svc", meta.ServiceID)

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "phone number\r\n+16502532222", string(data))
}

func xlsxBytes(t *testing.T, rows [][]string) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		for j, v := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue("Sheet1", cell, v))
		}
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func odsBytes(t *testing.T, rows string) []byte {
	t.Helper()
	content := `<?xml version="1.0" encoding="UTF-8"?>
<office:document-content xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" xmlns:table="urn:oasis:names:tc:opendocument:xmlns:table:1.0" xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0">
<office:body><office:spreadsheet><table:table table:name="Sheet1">` + rows + `</table:table></office:spreadsheet></office:body></office:document-content>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("mimetype")
	require.NoError(t, err)
	_, err = w.Write([]byte("application/vnd.oasis.opendocument.spreadsheet"))
	require.NoError(t, err)
	w, err = zw.Create("content.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDecodeStoreFetchDecodeIsStable(t *testing.T) {
	ctx := context.Background()
	inputs := map[string][]byte{
		"list.csv":  []byte(" Phone Number ,name\n+16502532222,\"Smith, Jo\"\n+16502532223,\n\n"),
		"list.tsv":  []byte("email address\tname\na@b.ca\tAda\n"),
		"üöäéñ.csv": []byte("email address\r\na@b.ca\r\n"),
		"notes.csv": []byte("email address,note\na@b.ca,\"line one\nline two\"\n"),
		"list.xlsx": xlsxBytes(t, [][]string{
			{" Email  Address ", "name", "note"},
			{"a@b.ca", "Smith, Jo", "line one\nline two"},
			{"b@b.ca", "", "\"quoted\""},
		}),
		"list.ods": odsBytes(t, `<table:table-row><table:table-cell><text:p>phone number</text:p></table:table-cell><table:table-cell><text:p>name</text:p></table:table-cell></table:table-row>
<table:table-row><table:table-cell><text:p>+16502532222</text:p></table:table-cell><table:table-cell><text:p>Smith,<text:s text:c="2"/>Jo</text:p><text:p>second line</text:p></table:table-cell></table:table-row>
<table:table-row table:number-rows-repeated="2"><table:table-cell table:number-columns-repeated="2"><text:p>x</text:p></table:table-cell></table:table-row>
<table:table-row table:number-rows-repeated="1000"><table:table-cell table:number-columns-repeated="2"/></table:table-row>`),
	}
	for name, raw := range inputs {
		for storeName, store := range stores(t) {
			t.Run(storeName+"/"+name, func(t *testing.T) {
				first, err := csvparser.Decode(raw, name)
				require.NoError(t, err)
				require.NoError(t, store.Put(ctx, "svc", "up", first, models.UploadMetadata{OriginalFileName: name}))

				fetched, _, err := ReadAll(ctx, store, "svc", "up")
				require.NoError(t, err)
				second, err := csvparser.Decode([]byte(fetched), "stored.csv")
				require.NoError(t, err)
				assert.Equal(t, first, second)
				assert.False(t, strings.HasSuffix(second, "\r\n"))
			})
		}
	}
}
