package contact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_FatherWithPhoneAndID(t *testing.T) {
	info, ok := Parse("父亲 王建国13800000001身份证110101199001011234", RoleFather)
	require.True(t, ok)
	assert.Equal(t, "王建国", info.Name)
	assert.Equal(t, "13800000001", info.Phone)
	assert.Equal(t, "110101199001011234", info.IDNumber)
	assert.Equal(t, RoleFather, info.Role)
}

func TestParse_PhoneOnly(t *testing.T) {
	info, ok := Parse("13800000000", RoleFather)
	require.True(t, ok)
	assert.Equal(t, "13800000000", info.Phone)
	assert.Empty(t, info.IDNumber)
	// 姓名为空时回退为原文
	assert.Equal(t, "13800000000", info.Name)
	assert.Equal(t, []string{"phone:13800000000"}, info.Tokens())
}

func TestParse_IDWithCheckCharacter(t *testing.T) {
	info, ok := Parse("李娜（母亲）联系电话：13912345678 身份证号：11010119900101123x", RoleMother)
	require.True(t, ok)
	assert.Equal(t, "李娜", info.Name)
	assert.Equal(t, "13912345678", info.Phone)
	assert.Equal(t, "11010119900101123X", info.IDNumber)
}

func TestParse_FullWidthDigits(t *testing.T) {
	info, ok := Parse("张伟 １３８００００００２", RoleFather)
	require.True(t, ok)
	assert.Equal(t, "13800000002", info.Phone)
	assert.Equal(t, "张伟", info.Name)
}

func TestParse_PhoneShapedSliceInsideIDIsIgnored(t *testing.T) {
	// 身份证号中包含 "13..." 片段，不能被当作手机号
	info, ok := Parse("赵六 113800000001011234", RoleFather)
	require.True(t, ok)
	assert.Empty(t, info.Phone)
	assert.Equal(t, "113800000001011234", info.IDNumber)
}

func TestParse_ConcatenatedPhoneAndID(t *testing.T) {
	info, ok := Parse("王建国13800000001110101199001011234", RoleFather)
	require.True(t, ok)
	assert.Equal(t, "13800000001", info.Phone)
	assert.Equal(t, "110101199001011234", info.IDNumber)
	assert.Equal(t, "王建国", info.Name)
}

func TestParse_EmptyAndSentinel(t *testing.T) {
	_, ok := Parse("   ", RoleOther)
	assert.False(t, ok)
	_, ok = Parse("null", RoleOther)
	assert.False(t, ok)
}

func TestParse_NoMatchesKeepsName(t *testing.T) {
	info, ok := Parse("外婆 陈秀英", RoleOther)
	require.True(t, ok)
	assert.Equal(t, "外婆 陈秀英", info.Name)
	assert.Empty(t, info.Phone)
	assert.Empty(t, info.IDNumber)
}

func TestParseList_OtherSplitsOnDelimiters(t *testing.T) {
	list := ParseList("外婆 13700000001、舅舅 13600000002；姑姑", RoleOther)
	require.Len(t, list, 3)
	assert.Equal(t, "外婆", list[0].Name)
	assert.Equal(t, "13700000001", list[0].Phone)
	assert.Equal(t, "舅舅", list[1].Name)
	assert.Equal(t, "13600000002", list[1].Phone)
	assert.Equal(t, "姑姑", list[2].Name)
}

func TestParseList_FatherIsSingleValue(t *testing.T) {
	list := ParseList("王建国, 13800000000", RoleFather)
	require.Len(t, list, 1)
	assert.Equal(t, "王建国", list[0].Name)
}

func TestMergeCaregivers(t *testing.T) {
	assert.Equal(t, "王芳妈妈、王芳爸爸、外婆", MergeCaregivers("王芳妈妈、王芳爸爸", "王芳爸爸,外婆", ""))
	assert.Equal(t, "", MergeCaregivers("", " "))
}

func TestSignature(t *testing.T) {
	a, _ := Parse("王建国 13800000000", RoleFather)
	b, _ := Parse("王 建国 13800000000", RoleFather)
	assert.Equal(t, a.Signature(), b.Signature())
}
