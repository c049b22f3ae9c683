package user

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kiongozi/core"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func newTestValidator(t *testing.T) (*validator.Validate, func(error) map[string]string) {
	t.Helper()
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)
	LoadCommonPasswords(nopLogger{})

	translate := func(err error) map[string]string {
		if err == nil {
			return nil
		}
		vErrs, ok := err.(validator.ValidationErrors)
		require.True(t, ok, "expected validator.ValidationErrors, got %T", err)
		fldErrs := make(map[string]string, len(vErrs))
		for _, vErr := range vErrs {
			fldErrs[vErr.Field()] = vErr.Translate(translator)
		}
		return fldErrs
	}
	return validate, translate
}

func TestLoadCommonPasswords(t *testing.T) {
	LoadCommonPasswords(nopLogger{})
	require.NotEmpty(t, commonPasswords)
	assert.True(t, isCommonPassword("password"))
	assert.True(t, isCommonPassword("p@$$w0rd"))
	assert.False(t, isCommonPassword("x7#Lq9!vT2"))
}

func TestNewUser_validation(t *testing.T) {
	validate, translate := newTestValidator(t)

	tests := []struct {
		name string
		nu   NewUser
		want map[string]string
	}{
		{
			name: "username or email required",
			nu:   NewUser{Name: "Amani", Password: "Str0ng#Pass", PasswordConfirm: "Str0ng#Pass"},
			want: map[string]string{
				"username": usernameOrEmailText,
				"email":    usernameOrEmailText,
			},
		},
		{
			name: "invalid roles",
			nu:   NewUser{Name: "Amani", Email: "amani@test.cd", Password: "Str0ng#Pass", PasswordConfirm: "Str0ng#Pass", Roles: []string{"pilot:"}},
			want: map[string]string{"roles": allRolesText},
		},
		{
			name: "password similar to username",
			nu:   NewUser{Name: "Amani", Username: "amanizawadi", Password: "Amanizawadi1!", PasswordConfirm: "Amanizawadi1!"},
			want: map[string]string{"password": pwdAttrSimText},
		},
		{
			name: "password too common",
			nu:   NewUser{Name: "Amani", Email: "amani@test.cd", Password: "P@$$w0rd", PasswordConfirm: "P@$$w0rd"},
			want: map[string]string{"password": pwdNoCommonText},
		},
		{
			name: "password whitespace",
			nu:   NewUser{Name: "Amani", Email: "amani@test.cd", Password: "Str0ng# Pass", PasswordConfirm: "Str0ng# Pass"},
			want: map[string]string{"password": pwdNoSpaceText},
		},
		{
			name: "valid",
			nu:   NewUser{Name: "Amani", Username: "amani_z", Email: "amani@test.cd", Password: "Str0ng#Pass", PasswordConfirm: "Str0ng#Pass", Roles: []string{RoleCoach}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translate(validate.Struct(tt.nu))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUpdateUser_validation(t *testing.T) {
	validate, translate := newTestValidator(t)

	// no password: no password policy
	assert.Nil(t, translate(validate.Struct(UpdateUser{Name: "Amani"})))

	got := translate(validate.Struct(UpdateUser{Name: "Amani", Password: "12345678", PasswordConfirm: "12345678"}))
	assert.Equal(t, map[string]string{"password": pwdNotAllNumText}, got)

	got = translate(validate.Struct(UpdateUser{Name: "Amani", Password: "lowercase1!", PasswordConfirm: "lowercase1!"}))
	assert.Equal(t, map[string]string{"password": pwdComplexityText}, got)
}

func TestRoles(t *testing.T) {
	owner := User{Roles: []string{RoleAdminOwner}}
	editor := User{Roles: []string{RoleAdminEditor}}
	coach := User{Roles: []string{RoleCoach}}
	learner := User{Roles: []string{RoleLearner}}

	assert.True(t, owner.IsAdmin())
	assert.True(t, owner.CanEditContent())
	assert.True(t, editor.CanEditContent())
	assert.False(t, (&User{Roles: []string{RoleAdmin}}).CanEditContent())
	assert.True(t, coach.IsModerator())
	assert.False(t, learner.IsModerator())
	assert.True(t, learner.IsLearner())

	assert.Equal(t, 30, MaxRolePriority(owner.Roles))
	assert.Equal(t, 0, MaxRolePriority(nil))
	assert.Greater(t, MaxRolePriority(editor.Roles), MaxRolePriority([]string{RoleAdmin, RoleCoach}))
}
